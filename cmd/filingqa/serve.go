package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/events"
	httpserver "github.com/fyrsmithlabs/filingqa/internal/http"
	"github.com/fyrsmithlabs/filingqa/internal/index"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the question answering HTTP API.

Endpoints:
  GET  /health           liveness
  GET  /ready            503 until an index is loaded
  GET  /metrics          Prometheus metrics
  POST /api/v1/ask       {"question": "..."}
  POST /api/v1/ingest    {"documents": [{"path": "...", "name": "..."}]}
  POST /api/v1/evaluate  {"questions": [...]}
  GET  /api/v1/stats     query and index statistics
  POST /api/v1/scrub     {"content": "..."} (when redaction is enabled)

With --watch the index is reloaded whenever another process rewrites it.
When events.url is set, rebuilds announced over NATS are loaded too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, cmd, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the index when its directory changes")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, cmd *cobra.Command, watch bool) error {
	a, err := setup(ctx, root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.loadIndex(ctx); err != nil {
		return err
	}
	svc := a.reg.QA()

	if bus := a.reg.Events(); bus != nil {
		err := bus.SubscribeRebuilt(ctx, func(ctx context.Context, ev events.IndexRebuilt) error {
			a.logger.Info(ctx, "index rebuilt elsewhere, reloading",
				zap.String("dir", ev.Dir), zap.Int("chunks", ev.Count))
			return svc.Load(ctx)
		})
		if err != nil {
			return err
		}
	}

	if watch {
		w, err := index.NewWatcher(a.cfg.Index.Dir, svc.Load, a.logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	srv, err := httpserver.NewServer(svc, a.reg.Scrubber(), a.logger.Underlying(), &httpserver.Config{
		Host:         a.cfg.Server.Host,
		Port:         a.cfg.Server.Port,
		BodyLimit:    a.cfg.Server.BodyLimit,
		Version:      version,
		Documents:    a.reg.Documents(),
		Model:        modelLabel(a.cfg),
		DocumentRoot: a.cfg.Ingest.Root,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}
