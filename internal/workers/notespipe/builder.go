package notespipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/workers"
)

// PipelineOrder is the canonical action sequence for one notes job.
var PipelineOrder = []string{
	workers.ActionParseNote,
	workers.ActionSaveNote,
	workers.ActionFanOutNote,
}

// NewFactory registers every notes action.
func NewFactory() (*workers.Factory[State], error) {
	f := workers.NewFactory[State]()
	for name, ctor := range map[string]func() workers.Action[State]{
		workers.ActionParseNote:  func() workers.Action[State] { return ParseNote{} },
		workers.ActionSaveNote:   func() workers.Action[State] { return SaveNote{} },
		workers.ActionFanOutNote: func() workers.Action[State] { return FanOutNote{} },
	} {
		if err := f.Register(name, ctor); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewWorker wires the notes queue worker.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueNotes, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[State]{
		Name:              "notes-worker",
		Queue:             deps.Queue(queue.QueueNotes),
		Concurrency:       concurrency,
		Pipeline:          pipeline,
		OnTerminalFailure: terminalFailure(deps),
	}, deps)
}

// terminalFailure marks the note failed and tells the client the import died.
// The hook gets the payload as decoded at the start of the attempt, so the
// note may or may not exist yet; look it up by import ID.
func terminalFailure(deps *workers.Deps) workers.TerminalFailureFunc[State] {
	return func(ctx context.Context, job *queue.Job, s State, err error) {
		if s.ImportID == "" {
			return
		}
		if note, dbErr := deps.Notes.GetByImportID(ctx, s.ImportID); dbErr == nil && note != nil {
			if upErr := deps.Notes.UpdateStatus(ctx, note.ID, domain.NoteStatusFailed); upErr != nil {
				deps.Log.Warn("Failed to record note failure",
					"job_id", job.ID, "import_id", s.ImportID, "error", upErr)
			}
		}
		_ = deps.Broadcaster.Emit(domain.StatusEvent{
			ImportID:    s.ImportID,
			Status:      domain.EventFailed,
			Message:     "Import failed: " + err.Error(),
			Context:     domain.EventContextImport,
			IndentLevel: 0,
		})
	}
}
