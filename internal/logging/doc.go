// Package logging is filingqa's structured logger: zap underneath, with
// context-aware methods and an optional OpenTelemetry bridge.
//
// Every method takes a context. Correlation values stored on it are added
// as fields:
//
//	trace_id, span_id   active OpenTelemetry span
//	query.id            WithQueryID, set once per answered question
//	document            WithDocument, set while a filing is ingested
//	request.id          WithRequestID, set by the HTTP middleware
//
// A typical setup:
//
//	cfg, err := logging.FromSettings(appCfg.Logging)
//	if err != nil {
//	    return err
//	}
//	logger, err := logging.NewLogger(cfg, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithQueryID(ctx, queryID)
//	logger.Info(ctx, "question answered", zap.Int("sources", 2))
//
// The encoder redacts configured field names and patterns (API keys, bearer
// tokens) and truncates long passage text. Sampling is per level so that
// bulk ingestion at debug or trace cannot flood the output; errors are never
// sampled.
//
// Tests use NewTestLogger and assert on recorded entries:
//
//	tl := logging.NewTestLogger()
//	svc := qa.New(cfg, qa.Dependencies{Logger: tl.Logger, ...})
//	tl.AssertLogged(t, zapcore.WarnLevel, "skipping document")
package logging
