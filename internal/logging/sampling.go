package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with level-aware sampling. Each level below
// Error gets its own sampler; Error and above are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel},
	}

	for _, lvl := range []zapcore.Level{TraceLevel, zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel} {
		filtered := &levelFilterCore{Core: core, min: lvl, max: lvl}
		rate, ok := cfg.Levels[lvl]
		if !ok {
			cores = append(cores, filtered)
			continue
		}
		cores = append(cores, zapcore.NewSamplerWithOptions(
			filtered,
			cfg.Tick.Duration(),
			rate.Initial,
			rate.Thereafter,
		))
	}

	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only entries in [min, max].
type levelFilterCore struct {
	zapcore.Core
	min zapcore.Level
	max zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core: c.Core.With(fields),
		min:  c.min,
		max:  c.max,
	}
}
