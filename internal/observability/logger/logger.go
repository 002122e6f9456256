package logger

import (
	"context"
	"strings"

	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the service logger. Production gets JSON output,
// everything else gets the development console encoder.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

// FromContext returns the global logger stamped with the active trace and
// span ids, when a recording span is present on the context.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
