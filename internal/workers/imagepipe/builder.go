package imagepipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// PipelineOrder is the canonical action sequence for one image job.
var PipelineOrder = []string{
	workers.ActionUploadOriginal,
	workers.ActionProcessImage,
	workers.ActionUploadProcessed,
	workers.ActionSaveImage,
	workers.ActionCleanupLocalFiles,
	workers.ActionImageCompletedStatus,
	workers.ActionCheckImageCompletion,
}

// NewFactory registers every image action.
func NewFactory() (*workers.Factory[domain.ImageJobData], error) {
	f := workers.NewFactory[domain.ImageJobData]()
	for name, ctor := range map[string]func() workers.Action[domain.ImageJobData]{
		workers.ActionUploadOriginal:       func() workers.Action[domain.ImageJobData] { return UploadOriginal{} },
		workers.ActionProcessImage:         func() workers.Action[domain.ImageJobData] { return ProcessImage{} },
		workers.ActionUploadProcessed:      func() workers.Action[domain.ImageJobData] { return UploadProcessed{} },
		workers.ActionSaveImage:            func() workers.Action[domain.ImageJobData] { return SaveImage{} },
		workers.ActionCleanupLocalFiles:    func() workers.Action[domain.ImageJobData] { return CleanupLocalFiles{} },
		workers.ActionImageCompletedStatus: func() workers.Action[domain.ImageJobData] { return ImageCompletedStatus{} },
		workers.ActionCheckImageCompletion: func() workers.Action[domain.ImageJobData] { return CheckImageCompletion{} },
	} {
		if err := f.Register(name, ctor); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewWorker wires the image queue worker: factory, pipeline, processing-status
// setup, and the terminal-failure hook that keeps note completion honest.
func NewWorker(deps *workers.Deps, concurrency int) (workers.Worker, error) {
	factory, err := NewFactory()
	if err != nil {
		return nil, err
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		return nil, err
	}

	pipeline := workers.NewPipeline(queue.QueueImage, actions, deps.Log, deps.Errors)
	if deps.Metrics != nil {
		pipeline.AddObserver(workers.NewMetricsObserver(deps.Metrics))
	}

	return workers.NewBaseWorker(workers.WorkerConfig[domain.ImageJobData]{
		Name:              "image-worker",
		Queue:             deps.Queue(queue.QueueImage),
		Concurrency:       concurrency,
		Pipeline:          pipeline,
		OnSetup:           markProcessing,
		OnTerminalFailure: terminalFailure(deps),
	}, deps)
}

// markProcessing flips the image record to processing before the first action
// runs. Best-effort: the record may not exist yet for standalone imports.
func markProcessing(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	if d.ImportID == "" {
		return d, nil
	}
	if err := deps.Images.UpdateStatusByImportID(ctx, d.ImportID, domain.ImageStatusProcessing, ""); err != nil {
		deps.Log.Debug("Could not mark image processing",
			"job_id", ac.JobID, "import_id", d.ImportID, "error", err)
	}
	return d, nil
}

// terminalFailure records the failure and still reports the job to the
// tracker, so one dead image cannot leave its note incomplete forever.
func terminalFailure(deps *workers.Deps) workers.TerminalFailureFunc[domain.ImageJobData] {
	return func(ctx context.Context, job *queue.Job, d domain.ImageJobData, err error) {
		if d.ImportID != "" {
			if dbErr := deps.Images.UpdateStatusByImportID(ctx, d.ImportID, domain.ImageStatusFailed, err.Error()); dbErr != nil {
				deps.Log.Warn("Failed to record image failure",
					"job_id", job.ID, "import_id", d.ImportID, "error", dbErr)
			}
			_ = deps.Broadcaster.Emit(domain.StatusEvent{
				ImportID:    d.ImportID,
				NoteID:      d.NoteID,
				Status:      domain.EventFailed,
				Message:     "Image processing failed: " + err.Error(),
				Context:     domain.EventContextImageProcessing,
				IndentLevel: 2,
			})
		}
		if d.NoteID != "" {
			deps.Tracker.MarkComplete(d.NoteID, services.CategoryImage, job.ID)
		}
	}
}
