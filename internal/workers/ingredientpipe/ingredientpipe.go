// Package ingredientpipe contains the ingredient worker's action pipeline:
// parse one raw ingredient line, persist it, and report completion.
package ingredientpipe

import (
	"context"

	"github.com/google/uuid"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// State is the value threaded through the ingredient pipeline.
type State struct {
	domain.IngredientJobData

	Parsed *services.ParsedIngredient `json:"-"`
}

func validateBase(s State) error {
	if s.ImportID == "" {
		return errs.MissingField("importId")
	}
	if s.NoteID == "" {
		return errs.MissingField("noteId")
	}
	return nil
}

// ParseIngredient splits the raw line into quantity, unit, and name. The
// rules are deterministic, so there is nothing here worth retrying; parse
// output is whatever the rules make of the line, even if that is just the
// raw text as the name.
type ParseIngredient struct{}

func (ParseIngredient) Name() string { return workers.ActionParseIngredient }

func (ParseIngredient) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.Raw == "" {
		return errs.MissingField("raw")
	}
	return nil
}

func (ParseIngredient) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	parsed := deps.Rules.ParseLine(s.Raw)
	s.Parsed = &parsed
	deps.Log.Debug("Ingredient parsed",
		"job_id", ac.JobID,
		"note_id", s.NoteID,
		"quantity", parsed.Quantity,
		"unit", parsed.Unit,
		"name", parsed.Name,
	)
	return s, nil
}

// SaveIngredient upserts the line keyed by (note, line index); a retried job
// overwrites its own earlier write.
type SaveIngredient struct{}

func (SaveIngredient) Name() string { return workers.ActionSaveIngredient }

func (SaveIngredient) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.Parsed == nil {
		return errs.MissingField("parsed")
	}
	return nil
}

func (SaveIngredient) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	noteID, err := uuid.Parse(s.NoteID)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
	}
	ing := &domain.Ingredient{
		NoteID:    noteID,
		LineIndex: s.LineIndex,
		Raw:       s.Parsed.Raw,
		Quantity:  s.Parsed.Quantity,
		Unit:      s.Parsed.Unit,
		Name:      s.Parsed.Name,
	}
	if err := deps.Ingredients.Upsert(ctx, ing); err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "save ingredient")
	}
	return s, nil
}

// IngredientCompletedStatus reports this line to the completion tracker.
type IngredientCompletedStatus struct{}

func (IngredientCompletedStatus) Name() string { return workers.ActionIngredientCompletedStatus }

func (IngredientCompletedStatus) ValidateInput(s State) error { return validateBase(s) }

func (IngredientCompletedStatus) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	if deps.Tracker.MarkComplete(s.NoteID, services.CategoryIngredient, ac.JobID) {
		deps.Log.Info("Last ingredient job for note finished",
			"job_id", ac.JobID, "note_id", s.NoteID, "import_id", s.ImportID)
	}
	return s, nil
}

// PipelineOrder is the canonical action sequence for one ingredient job.
var PipelineOrder = []string{
	workers.ActionParseIngredient,
	workers.ActionSaveIngredient,
	workers.ActionIngredientCompletedStatus,
}

// NewFactory registers every ingredient action.
func NewFactory() (*workers.Factory[State], error) {
	f := workers.NewFactory[State]()
	for name, ctor := range map[string]func() workers.Action[State]{
		workers.ActionParseIngredient:           func() workers.Action[State] { return ParseIngredient{} },
		workers.ActionSaveIngredient:            func() workers.Action[State] { return SaveIngredient{} },
		workers.ActionIngredientCompletedStatus: func() workers.Action[State] { return IngredientCompletedStatus{} },
	} {
		if err := f.Register(name, ctor); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewWorker wires the ingredient queue worker.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueIngredients, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[State]{
		Name:              "ingredient-worker",
		Queue:             deps.Queue(queue.QueueIngredients),
		Concurrency:       concurrency,
		Pipeline:          pipeline,
		OnTerminalFailure: terminalFailure(deps),
	}, deps)
}

// terminalFailure still reports the line to the tracker: one unparseable
// line must not leave its note permanently incomplete.
func terminalFailure(deps *workers.Deps) workers.TerminalFailureFunc[State] {
	return func(ctx context.Context, job *queue.Job, s State, err error) {
		if s.NoteID == "" {
			return
		}
		deps.Log.Warn("Ingredient job dead-lettered",
			"job_id", job.ID, "note_id", s.NoteID, "line_index", s.LineIndex, "error", err)
		deps.Tracker.MarkComplete(s.NoteID, services.CategoryIngredient, job.ID)
	}
}
