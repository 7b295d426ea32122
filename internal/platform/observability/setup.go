package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures instrumentation toggles. Exporter endpoints can be added
// here when an external collector exists.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down any instrumentation exporters.
type ShutdownFunc func(context.Context) error

var (
	loggerMu sync.RWMutex
	spanLog  *slog.Logger
	state    Config
)

func current() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return spanLog, state
}

// Setup routes spans and metrics through the given structured logger. Spans
// are recorded only while enabled; callers keep their StartSpan calls in
// place either way.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	spanLog = logger
	state = cfg
	loggerMu.Unlock()

	if logger != nil && cfg.Enabled {
		logger.InfoContext(ctx, "instrumentation enabled")
	}
	return func(context.Context) error { return nil }, nil
}
