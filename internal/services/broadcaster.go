package services

import (
	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
)

// Sink receives serialized status events. The websocket hub implements it.
type Sink interface {
	Broadcast(v any) error
}

// StatusBroadcaster pushes import progress events to connected clients.
// Broadcasting is strictly best-effort: callers log the returned error but
// never fail a job because a status update could not be delivered.
type StatusBroadcaster interface {
	Emit(event domain.StatusEvent) error
}

type statusBroadcaster struct {
	log  *logger.Logger
	sink Sink
}

func NewStatusBroadcaster(log *logger.Logger, sink Sink) StatusBroadcaster {
	return &statusBroadcaster{
		log:  log.With("service", "StatusBroadcaster"),
		sink: sink,
	}
}

func (b *statusBroadcaster) Emit(event domain.StatusEvent) error {
	if event.ImportID == "" {
		return errs.MissingField("importId")
	}
	if event.Status == "" {
		return errs.MissingField("status")
	}
	if event.Context == "" {
		event.Context = domain.EventContextImport
	}
	if b.sink == nil {
		return nil
	}
	if err := b.sink.Broadcast(event); err != nil {
		b.log.Warn("Status broadcast failed",
			"import_id", event.ImportID,
			"context", event.Context,
			"error", err,
		)
		return err
	}
	return nil
}
