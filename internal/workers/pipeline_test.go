package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
)

type testState struct {
	Trail []string
}

type trailAction struct {
	name    string
	fail    error
	badInput error
}

func (a *trailAction) Name() string { return a.name }

func (a *trailAction) ValidateInput(testState) error { return a.badInput }

func (a *trailAction) Execute(_ context.Context, _ *ActionContext, data testState, _ *Deps) (testState, error) {
	if a.fail != nil {
		return data, a.fail
	}
	data.Trail = append(data.Trail, a.name)
	return data, nil
}

func newTestDeps() *Deps {
	log := logger.NewNop()
	return &Deps{
		Log:    log,
		Errors: errs.NewHandler(log),
		Retry:  errs.RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	}
}

func testActionContext() *ActionContext {
	return &ActionContext{
		JobID:     "job-1",
		QueueName: "notes",
		Attempt:   1,
		StartedAt: time.Now(),
	}
}

func TestPipelineRunsActionsInOrder(t *testing.T) {
	deps := newTestDeps()
	p := NewPipeline("notes", []Action[testState]{
		&trailAction{name: "first"},
		&trailAction{name: "second"},
		&trailAction{name: "third"},
	}, deps.Log, deps.Errors)

	out, err := p.Run(context.Background(), testActionContext(), testState{}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(out.Trail) != len(want) {
		t.Fatalf("trail = %v", out.Trail)
	}
	for i := range want {
		if out.Trail[i] != want[i] {
			t.Fatalf("trail = %v, want %v", out.Trail, want)
		}
	}
}

func TestPipelineStopsAtFirstError(t *testing.T) {
	deps := newTestDeps()
	boom := errors.New("boom")
	third := &trailAction{name: "third"}
	p := NewPipeline("notes", []Action[testState]{
		&trailAction{name: "first"},
		&trailAction{name: "second", fail: boom},
		third,
	}, deps.Log, deps.Errors)

	out, err := p.Run(context.Background(), testActionContext(), testState{}, deps)
	if err == nil {
		t.Fatal("expected error from failing action")
	}
	if len(out.Trail) != 1 || out.Trail[0] != "first" {
		t.Fatalf("trail = %v, want only the first action", out.Trail)
	}

	// The handler classifies raw errors into structured ones.
	se, ok := errs.As(err)
	if !ok {
		t.Fatalf("error is not structured: %v", err)
	}
	if se.Context["action"] != "second" || se.Context["job_id"] != "job-1" {
		t.Fatalf("error context = %v", se.Context)
	}
}

func TestPipelineValidationFailureSkipsExecute(t *testing.T) {
	deps := newTestDeps()
	p := NewPipeline("notes", []Action[testState]{
		&trailAction{name: "only", badInput: errs.MissingField("importId")},
	}, deps.Log, deps.Errors)

	out, err := p.Run(context.Background(), testActionContext(), testState{}, deps)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(out.Trail) != 0 {
		t.Fatalf("execute ran despite validation failure: %v", out.Trail)
	}
	se, _ := errs.As(err)
	if se == nil || se.Type != errs.TypeValidation {
		t.Fatalf("error = %v, want VALIDATION", err)
	}
}

type recordingObserver struct {
	started   []string
	completed []string
	errored   []string
}

func (r *recordingObserver) ActionStarted(_ *ActionContext, action string) {
	r.started = append(r.started, action)
}

func (r *recordingObserver) ActionCompleted(_ *ActionContext, action string, _ time.Duration, err error) {
	r.completed = append(r.completed, action)
	if err != nil {
		r.errored = append(r.errored, action)
	}
}

func TestPipelineNotifiesObservers(t *testing.T) {
	deps := newTestDeps()
	p := NewPipeline("notes", []Action[testState]{
		&trailAction{name: "first"},
		&trailAction{name: "second", fail: errors.New("boom")},
	}, deps.Log, deps.Errors)
	obs := &recordingObserver{}
	p.AddObserver(obs)

	_, _ = p.Run(context.Background(), testActionContext(), testState{}, deps)

	if len(obs.started) != 2 || len(obs.completed) != 2 {
		t.Fatalf("observer calls: started=%v completed=%v", obs.started, obs.completed)
	}
	if len(obs.errored) != 1 || obs.errored[0] != "second" {
		t.Fatalf("errored = %v", obs.errored)
	}
}

func TestPipelineFinishesAfterContextCancelled(t *testing.T) {
	deps := newTestDeps()
	p := NewPipeline("image", []Action[testState]{
		&trailAction{name: "first"},
		&trailAction{name: "second"},
	}, deps.Log, deps.Errors)

	// A shutdown mid-job must not abort the sequence; a started job always
	// runs every action.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Run(ctx, testActionContext(), testState{}, deps)
	if err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if len(out.Trail) != 2 {
		t.Fatalf("trail = %v, want both actions", out.Trail)
	}
}
