package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/health"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/observability"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/utils"
	"github.com/platebook/importer-backend/internal/workers"
	"github.com/platebook/importer-backend/internal/workers/categorypipe"
	"github.com/platebook/importer-backend/internal/workers/imagepipe"
	"github.com/platebook/importer-backend/internal/workers/ingredientpipe"
	"github.com/platebook/importer-backend/internal/workers/instructionpipe"
	"github.com/platebook/importer-backend/internal/workers/notespipe"
	"github.com/platebook/importer-backend/internal/workers/sourcepipe"
)

func wireQueues(clients Clients, log *logger.Logger, cfg Config) map[string]queue.Queue {
	log.Info("Wiring queues...")
	queues := make(map[string]queue.Queue, len(queue.Names()))
	for _, name := range queue.Names() {
		queues[name] = queue.NewRedisQueue(clients.Redis, name, log, cfg.Retry())
	}
	return queues
}

func wireWorkerDeps(
	log *logger.Logger,
	db *gorm.DB,
	cfg Config,
	clients Clients,
	reposet Repos,
	serviceset Services,
	queues map[string]queue.Queue,
	monitor *health.Monitor,
	metrics *observability.Metrics,
) *workers.Deps {
	return &workers.Deps{
		Log:          log,
		DB:           db,
		Notes:        reposet.Notes,
		Images:       reposet.Images,
		Ingredients:  reposet.Ingredients,
		Instructions: reposet.Instructions,
		Sources:      reposet.Sources,
		Store:        clients.Store,
		Media:        serviceset.Media,
		Parser:       serviceset.Parser,
		Rules:        serviceset.Rules,
		Placeholder:  clients.Placeholder,
		Broadcaster:  serviceset.Broadcaster,
		Tracker:      serviceset.Tracker,
		Health:       monitor,
		Queues:       queues,
		Errors:       errs.NewHandler(log),
		Metrics:      metrics,
		WorkDir:      cfg.WorkDir,
		ImageBaseURL: cfg.ImageBaseURL,
		Retry:        cfg.Retry(),
	}
}

func wireWorkers(deps *workers.Deps, cfg Config) (*workers.Manager, error) {
	deps.Log.Info("Wiring workers...", "concurrency", cfg.BatchSize)

	// When every category for a note drains, the note row goes terminal. The
	// tracker already emitted the import-complete event by the time this runs.
	deps.Tracker.OnNoteDone(func(noteID, importID string) {
		id, err := uuid.Parse(noteID)
		if err != nil {
			return
		}
		if err := deps.Notes.UpdateStatus(context.Background(), id, domain.NoteStatusCompleted); err != nil {
			deps.Log.Error("Failed to mark note completed",
				"note_id", noteID, "import_id", importID, "error", err)
		}
	})

	// When a note's ingredient jobs drain, categorization starts. Installed
	// before any worker runs a job.
	deps.Tracker.OnCategoryDone(func(noteID, importID, category string) {
		if category != services.CategoryIngredient {
			return
		}
		q := deps.Queue(queue.QueueCategorization)
		if q == nil {
			return
		}
		if _, err := q.Push(context.Background(), domain.CategorizationJobData{
			NoteID: noteID, ImportID: importID,
		}, nil); err != nil {
			deps.Log.Error("Failed to enqueue categorization",
				"note_id", noteID, "import_id", importID, "error", err)
		}
	})

	manager := workers.NewManager(deps.Log)
	builders := []struct {
		queue string
		build func(*workers.Deps, int) (workers.Worker, error)
	}{
		{queue.QueueNotes, notespipe.NewWorker},
		{queue.QueueIngredients, ingredientpipe.NewWorker},
		{queue.QueueInstruction, instructionpipe.NewWorker},
		{queue.QueueImage, imagepipe.NewWorker},
		{queue.QueueCategorization, categorypipe.NewWorker},
		{queue.QueueSource, sourcepipe.NewWorker},
	}
	for _, b := range builders {
		concurrency := queueConcurrency(deps.Log, b.queue, cfg.BatchSize)
		w, err := b.build(deps, concurrency)
		if err != nil {
			return nil, fmt.Errorf("build %s worker: %w", b.queue, err)
		}
		if err := manager.Register(w); err != nil {
			return nil, fmt.Errorf("register worker %s: %w", w.Name(), err)
		}
	}
	return manager, nil
}

// queueConcurrency resolves the per-worker handler ceiling: BATCH_SIZE by
// default, overridable per queue via e.g. IMAGE_CONCURRENCY.
func queueConcurrency(log *logger.Logger, queueName string, fallback int) int {
	key := strings.ToUpper(queueName) + "_CONCURRENCY"
	n := utils.GetEnvAsInt(key, fallback, log)
	if n < 1 {
		n = fallback
	}
	return n
}
