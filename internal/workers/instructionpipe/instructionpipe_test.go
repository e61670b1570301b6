package instructionpipe

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/repos"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

func TestFormatStep(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"chop the onion", "Chop the onion."},
		{"  simmer   everything  ", "Simmer everything."},
		{"1. Preheat the oven", "Preheat the oven."},
		{"2) mix well", "Mix well."},
		{"Step 3: fold in the cheese", "Fold in the cheese."},
		{"step 4 rest the dough", "Rest the dough."},
		{"Serve immediately!", "Serve immediately!"},
		{"Step on the scale", "Step on the scale."},
		{"Bake 20 minutes", "Bake 20 minutes."},
	}
	for _, tc := range cases {
		if got := formatStep(tc.in); got != tc.want {
			t.Errorf("formatStep(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func newTestDeps(t *testing.T) *workers.Deps {
	t.Helper()
	log := logger.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.Instruction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	broadcaster := services.NewStatusBroadcaster(log, nil)
	return &workers.Deps{
		Log:          log,
		DB:           db,
		Instructions: repos.NewInstructionRepo(db, log),
		Broadcaster:  broadcaster,
		Tracker:      services.NewCompletionTracker(log, broadcaster),
		Errors:       errs.NewHandler(log),
		Retry:        errs.RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	}
}

func TestInstructionPipelineFormatsAndSaves(t *testing.T) {
	deps := newTestDeps(t)
	noteID := uuid.New()
	deps.Tracker.Register(noteID.String(), services.CategoryInstruction, 2)

	factory, err := NewFactory()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := workers.NewPipeline(queue.QueueInstruction, actions, deps.Log, deps.Errors)

	for i, text := range []string{"1. chop the onion", "2. simmer everything"} {
		ac := &workers.ActionContext{JobID: "job-" + string(rune('a'+i)), QueueName: "instruction", Attempt: 1, StartedAt: time.Now()}
		s := State{InstructionJobData: domain.InstructionJobData{
			NoteID: noteID.String(), ImportID: "imp-1", StepIndex: i, Text: text,
		}}
		if _, err := p.Run(context.Background(), ac, s, deps); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	rows, err := deps.Instructions.ListByNoteID(context.Background(), noteID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows = %d, %v", len(rows), err)
	}
	if rows[0].Text != "Chop the onion." || rows[1].Text != "Simmer everything." {
		t.Fatalf("rows = %q, %q", rows[0].Text, rows[1].Text)
	}

	if !deps.Tracker.IsComplete(noteID.String(), services.CategoryInstruction) {
		t.Fatal("two jobs should drain the category")
	}
}
