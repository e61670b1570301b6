package errs

import (
	"context"

	"github.com/platebook/importer-backend/internal/logger"
)

// Handler classifies, logs, and wraps errors on behalf of the pipeline
// runtime. One handler is shared per process; it holds no per-job state.
type Handler struct {
	log *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{log: log.With("component", "ErrorHandler")}
}

// Handle classifies err, merges the extra context, logs by severity, and
// returns the structured error.
func (h *Handler) Handle(err error, ctx map[string]any) *Error {
	if err == nil {
		return nil
	}
	se := Classify(err).WithContext(ctx)
	kvs := []interface{}{
		"error_type", string(se.Type),
		"severity", string(se.Severity),
		"error", se.Error(),
	}
	for k, v := range se.Context {
		kvs = append(kvs, k, v)
	}
	switch se.Severity {
	case SeverityCritical, SeverityHigh:
		h.log.Error("operation failed", kvs...)
	case SeverityMedium:
		h.log.Warn("operation failed", kvs...)
	default:
		h.log.Info("operation failed", kvs...)
	}
	return se
}

// WithErrorHandling runs op; on failure the error is classified, logged with
// the given context, and re-raised as a structured error.
func (h *Handler) WithErrorHandling(ctx context.Context, op func(ctx context.Context) error, logCtx map[string]any) error {
	if err := op(ctx); err != nil {
		return h.Handle(err, logCtx)
	}
	return nil
}
