package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/logging"
	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/services"
	"github.com/fyrsmithlabs/filingqa/internal/telemetry"
)

// app holds what every command needs: config, logger, telemetry and the
// component registry.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
	reg    services.Registry
}

// loadConfig reads the config file and environment, applying flag
// overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}

// initLogger builds the logger. Logs go to logOut so command output on
// stdout stays clean.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry, logOut io.Writer) (*logging.Logger, error) {
	lcfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	lcfg.Output.Writer = logOut
	return logging.NewLogger(lcfg, tel.LoggerProvider())
}

// setup loads configuration and builds every component.
func setup(ctx context.Context, opts *rootOptions, logOut io.Writer, buildOpts ...services.BuildOption) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	telCfg := telemetry.FromSettings(cfg.Telemetry, version)
	telCfg.Attributes = telemetry.PipelineAttributes(cfg)
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := initLogger(cfg, tel, logOut)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	if cfg.Generation.APIKey.IsSet() {
		logger.Debug(ctx, "generation credentials configured", logging.Secret("credential", cfg.Generation.APIKey))
	}

	reg, err := services.Build(ctx, cfg, logger, buildOpts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, tel: tel, reg: reg}, nil
}

// loadIndex loads the persisted index if there is one. A missing index is
// not an error; questions are answered with not_indexed until one exists.
func (a *app) loadIndex(ctx context.Context) error {
	err := a.reg.QA().Load(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, qa.ErrIndexNotBuilt):
		a.logger.Warn(ctx, "no index found, run 'filingqa ingest' first", zap.String("dir", a.cfg.Index.Dir))
		return nil
	default:
		return err
	}
}

// Close releases components and flushes telemetry. It runs after the
// command context may already be cancelled.
func (a *app) Close() {
	ctx := context.Background()
	if err := a.reg.Close(); err != nil {
		a.logger.Warn(ctx, "closing components", zap.Error(err))
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// modelLabel names the answer generator in reports.
func modelLabel(cfg *config.Config) string {
	if cfg.Generation.Provider == "extractive" {
		return "extractive"
	}
	return cfg.Generation.Provider + "/" + cfg.Generation.Model
}
