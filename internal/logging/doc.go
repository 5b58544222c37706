// Package logging provides structured logging for codemage.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (trace_id, generation.id, request.id)
//   - Secret redaction at the encoder
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithGenerationID(ctx, id)
//	logger.Info(ctx, "stage started", zap.Int("step", 2))
//
// Output:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "stage started",
//	  "generation.id": "5c0f...",
//	  "step": 2
//	}
//
// # Testing
//
// NewTestLogger captures entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := NewService(tl.Logger)
//	tl.AssertLogged(t, zapcore.InfoLevel, "stage started")
package logging
