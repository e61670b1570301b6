// Package categorypipe contains the categorization worker's action pipeline.
// It runs once per note, after the note's ingredient jobs have drained, and
// derives tags from the saved ingredient lines.
package categorypipe

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/workers"
)

// State is the value threaded through the categorization pipeline.
type State struct {
	domain.CategorizationJobData

	Tags []string `json:"-"`
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

// Tag vocabulary. Keyword matching is substring-based over the lowercased
// ingredient name, so "chicken thighs" matches "chicken".
var tagKeywords = map[string][]string{
	"seafood": {"salmon", "shrimp", "tuna", "cod", "crab", "anchovy", "sardine", "fish"},
	"poultry": {"chicken", "turkey", "duck"},
	"meat":    {"beef", "pork", "lamb", "bacon", "sausage", "ham", "steak"},
	"dessert": {"chocolate", "vanilla", "caramel", "powdered sugar", "frosting"},
	"spicy":   {"chili", "jalapeno", "jalapeño", "cayenne", "sriracha", "harissa", "gochujang"},
	"baking":  {"flour", "yeast", "baking powder", "baking soda"},
}

// Tags implied by the absence of others.
var meatTags = map[string]struct{}{"seafood": {}, "poultry": {}, "meat": {}}

func deriveTags(names []string) []string {
	found := map[string]struct{}{}
	for _, name := range names {
		lower := strings.ToLower(name)
		for tag, keywords := range tagKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					found[tag] = struct{}{}
					break
				}
			}
		}
	}

	hasMeat := false
	for tag := range found {
		if _, ok := meatTags[tag]; ok {
			hasMeat = true
			break
		}
	}
	if !hasMeat && len(names) > 0 {
		found["vegetarian"] = struct{}{}
	}

	tags := make([]string, 0, len(found))
	for tag := range found {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// CategorizeNote loads the note's saved ingredients and derives its tags.
type CategorizeNote struct{}

func (CategorizeNote) Name() string { return workers.ActionCategorizeNote }

func (CategorizeNote) ValidateInput(s State) error { return validateBase(s) }

func (CategorizeNote) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	noteID, err := uuid.Parse(s.NoteID)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
	}
	ingredients, err := deps.Ingredients.ListByNoteID(ctx, noteID)
	if err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "list ingredients")
	}

	names := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing.Name != "" {
			names = append(names, ing.Name)
		} else {
			names = append(names, ing.Raw)
		}
	}
	s.Tags = deriveTags(names)

	deps.Log.Debug("Note categorized",
		"job_id", ac.JobID, "note_id", s.NoteID, "tags", s.Tags)
	return s, nil
}

// SaveCategories writes the derived tags onto the note and emits the final
// categorization event.
type SaveCategories struct{}

func (SaveCategories) Name() string { return workers.ActionSaveCategories }

func (SaveCategories) ValidateInput(s State) error { return validateBase(s) }

func (SaveCategories) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	noteID, err := uuid.Parse(s.NoteID)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
	}

	raw, err := json.Marshal(s.Tags)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeWorker, "encode tags")
	}
	if err := deps.Notes.UpdateTags(ctx, noteID, datatypes.JSON(raw)); err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "save tags")
	}

	_ = deps.Broadcaster.Emit(domain.StatusEvent{
		ImportID:    s.ImportID,
		NoteID:      s.NoteID,
		Status:      domain.EventCompleted,
		Message:     "Note categorized",
		Context:     domain.EventContextCategorization,
		IndentLevel: 1,
		Metadata:    map[string]any{"tags": s.Tags},
	})
	return s, nil
}

// PipelineOrder is the canonical action sequence for one categorization job.
var PipelineOrder = []string{
	workers.ActionCategorizeNote,
	workers.ActionSaveCategories,
}

// NewFactory registers every categorization action.
func NewFactory() (*workers.Factory[State], error) {
	f := workers.NewFactory[State]()
	for name, ctor := range map[string]func() workers.Action[State]{
		workers.ActionCategorizeNote: func() workers.Action[State] { return CategorizeNote{} },
		workers.ActionSaveCategories: func() workers.Action[State] { return SaveCategories{} },
	} {
		if err := f.Register(name, ctor); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewWorker wires the categorization queue worker.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueCategorization, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[State]{
		Name:        "categorization-worker",
		Queue:       deps.Queue(queue.QueueCategorization),
		Concurrency: concurrency,
		Pipeline:    pipeline,
	}, deps)
}
