// Package sourcepipe contains the source worker's single-action pipeline:
// persist where a note came from.
package sourcepipe

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/workers"
)

// State is the value threaded through the source pipeline.
type State struct {
	domain.SourceJobData
}

// SaveSource upserts the note's source record, keyed by note so a retried
// job overwrites rather than duplicates. The domain column is the bare
// hostname, lowercased with any www. prefix removed.
type SaveSource struct{}

func (SaveSource) Name() string { return workers.ActionSaveSource }

func (SaveSource) ValidateInput(s State) error {
	if s.ImportID == "" {
		return errs.MissingField("importId")
	}
	if s.NoteID == "" {
		return errs.MissingField("noteId")
	}
	if s.URL == "" {
		return errs.MissingField("url")
	}
	return nil
}

func (SaveSource) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	noteID, err := uuid.Parse(s.NoteID)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
	}

	src := &domain.Source{
		NoteID: noteID,
		URL:    s.URL,
		Domain: extractDomain(s.URL),
	}
	if err := deps.Sources.Upsert(ctx, src); err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "save source")
	}

	_ = deps.Broadcaster.Emit(domain.StatusEvent{
		ImportID:    s.ImportID,
		NoteID:      s.NoteID,
		Status:      domain.EventCompleted,
		Message:     "Source saved",
		Context:     domain.EventContextSource,
		IndentLevel: 1,
	})

	deps.Log.Debug("Source saved",
		"job_id", ac.JobID, "note_id", s.NoteID, "domain", src.Domain)
	return s, nil
}

func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// PipelineOrder is the canonical action sequence for one source job.
var PipelineOrder = []string{workers.ActionSaveSource}

// NewFactory registers the source action.
func NewFactory() (*workers.Factory[State], error) {
	f := workers.NewFactory[State]()
	if err := f.Register(workers.ActionSaveSource, func() workers.Action[State] { return SaveSource{} }); err != nil {
		return nil, err
	}
	return f, nil
}

// NewWorker wires the source queue worker.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueSource, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[State]{
		Name:        "source-worker",
		Queue:       deps.Queue(queue.QueueSource),
		Concurrency: concurrency,
		Pipeline:    pipeline,
	}, deps)
}
