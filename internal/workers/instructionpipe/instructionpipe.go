// Package instructionpipe contains the instruction worker's action pipeline:
// normalize one step of free text, persist it, and report completion.
package instructionpipe

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// State is the value threaded through the instruction pipeline.
type State struct {
	domain.InstructionJobData

	Formatted string `json:"-"`
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

// FormatInstruction normalizes one step: collapse whitespace, strip any
// leading step numbering left over from the source list, uppercase the first
// letter, and make sure the step ends with terminal punctuation.
type FormatInstruction struct{}

func (FormatInstruction) Name() string { return workers.ActionFormatInstruction }

func (FormatInstruction) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if strings.TrimSpace(s.Text) == "" {
		return errs.MissingField("text")
	}
	return nil
}

func (FormatInstruction) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	s.Formatted = formatStep(s.Text)
	return s, nil
}

func formatStep(text string) string {
	out := strings.Join(strings.Fields(text), " ")
	out = stripLeadingNumber(out)
	if out == "" {
		return out
	}

	runes := []rune(out)
	runes[0] = unicode.ToUpper(runes[0])
	out = string(runes)

	switch runes[len(runes)-1] {
	case '.', '!', '?', ':':
	default:
		out += "."
	}
	return out
}

// stripLeadingNumber removes "1.", "2)", "Step 3:" style prefixes.
func stripLeadingNumber(text string) string {
	t := text
	if rest, ok := cutPrefixFold(t, "step"); ok {
		t = strings.TrimSpace(rest)
	}
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 {
		if t != text {
			// "Step" with no number; keep the original text.
			return text
		}
		return t
	}
	rest := t[i:]
	if rest == "" {
		return text
	}
	switch rest[0] {
	case '.', ')', ':', '-':
		return strings.TrimSpace(rest[1:])
	case ' ':
		if t != text {
			// "Step 3 simmer" — the number was a marker, not content.
			return strings.TrimSpace(rest)
		}
	}
	return text
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// SaveInstruction upserts the step keyed by (note, step index).
type SaveInstruction struct{}

func (SaveInstruction) Name() string { return workers.ActionSaveInstruction }

func (SaveInstruction) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.Formatted == "" {
		return errs.MissingField("formatted")
	}
	return nil
}

func (SaveInstruction) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	noteID, err := uuid.Parse(s.NoteID)
	if err != nil {
		return s, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
	}
	ins := &domain.Instruction{
		NoteID:    noteID,
		StepIndex: s.StepIndex,
		Text:      s.Formatted,
	}
	if err := deps.Instructions.Upsert(ctx, ins); err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "save instruction")
	}
	return s, nil
}

// InstructionCompletedStatus reports this step to the completion tracker.
type InstructionCompletedStatus struct{}

func (InstructionCompletedStatus) Name() string { return workers.ActionInstructionCompletedStatus }

func (InstructionCompletedStatus) ValidateInput(s State) error { return validateBase(s) }

func (InstructionCompletedStatus) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	if deps.Tracker.MarkComplete(s.NoteID, services.CategoryInstruction, ac.JobID) {
		deps.Log.Info("Last instruction job for note finished",
			"job_id", ac.JobID, "note_id", s.NoteID, "import_id", s.ImportID)
	}
	return s, nil
}

// PipelineOrder is the canonical action sequence for one instruction job.
var PipelineOrder = []string{
	workers.ActionFormatInstruction,
	workers.ActionSaveInstruction,
	workers.ActionInstructionCompletedStatus,
}

// NewFactory registers every instruction action.
func NewFactory() (*workers.Factory[State], error) {
	f := workers.NewFactory[State]()
	for name, ctor := range map[string]func() workers.Action[State]{
		workers.ActionFormatInstruction:          func() workers.Action[State] { return FormatInstruction{} },
		workers.ActionSaveInstruction:            func() workers.Action[State] { return SaveInstruction{} },
		workers.ActionInstructionCompletedStatus: func() workers.Action[State] { return InstructionCompletedStatus{} },
	} {
		if err := f.Register(name, ctor); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewWorker wires the instruction queue worker.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueInstruction, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[State]{
		Name:              "instruction-worker",
		Queue:             deps.Queue(queue.QueueInstruction),
		Concurrency:       concurrency,
		Pipeline:          pipeline,
		OnTerminalFailure: terminalFailure(deps),
	}, deps)
}

func terminalFailure(deps *workers.Deps) workers.TerminalFailureFunc[State] {
	return func(ctx context.Context, job *queue.Job, s State, err error) {
		if s.NoteID == "" {
			return
		}
		deps.Log.Warn("Instruction job dead-lettered",
			"job_id", job.ID, "note_id", s.NoteID, "step_index", s.StepIndex, "error", err)
		deps.Tracker.MarkComplete(s.NoteID, services.CategoryInstruction, job.ID)
	}
}
