package workers

import (
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/health"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/observability"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/repos"
	"github.com/platebook/importer-backend/internal/services"
)

/*
Deps is the capability bundle handed to every action. One instance is built
during wiring and shared by all workers; everything in it is safe for
concurrent use.

Store and Placeholder are nil when their env config is absent — the importer
degrades to local-only processing and plain notes rather than refusing to
start. Actions touching them must nil-check.
*/
type Deps struct {
	Log *logger.Logger
	DB  *gorm.DB

	Notes        repos.NoteRepo
	Images       repos.ImageRepo
	Ingredients  repos.IngredientRepo
	Instructions repos.InstructionRepo
	Sources      repos.SourceRepo

	Store       objstore.Store
	Media       services.MediaProcessor
	Parser      services.NoteParser
	Rules       services.IngredientRules
	Placeholder services.PlaceholderService
	Broadcaster services.StatusBroadcaster
	Tracker     services.CompletionTracker

	Health  *health.Monitor
	Queues  map[string]queue.Queue
	Errors  *errs.Handler
	Metrics *observability.Metrics

	// WorkDir is the scratch root for downloaded and rendered files.
	WorkDir string
	// ImageBaseURL resolves relative image srcs in note HTML and prefixes
	// the local /images/ URLs persisted when a derivative never reached
	// object storage.
	ImageBaseURL string
	Retry        errs.RetryConfig
}

// Queue returns the named queue or nil. Fan-out actions treat a nil queue as
// a wiring error and fail validation.
func (d *Deps) Queue(name string) queue.Queue {
	if d == nil || d.Queues == nil {
		return nil
	}
	return d.Queues[name]
}
