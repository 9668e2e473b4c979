package logging

import (
	"context"
	"fmt"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. pretty switches to the console encoder for local runs.
func New(level string, pretty bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// WithContext adds the request, trace, operator and case fields found on ctx.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 4)
	if requestID := appctx.GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if caseID := appctx.GetCaseID(ctx); caseID != "" {
		fields = append(fields, zap.String("case_id", caseID))
	}
	fields = append(fields, zap.String("operator", appctx.GetOperator(ctx)))
	return logger.With(fields...)
}
