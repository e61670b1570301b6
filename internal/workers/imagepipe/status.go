package imagepipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// ImageCompletedStatus flips the persisted record to completed, pushes a
// progress event and reports the job to the completion tracker. All three
// writes are best-effort: the job already did its work, a failed status
// update should not resurrect it.
type ImageCompletedStatus struct{}

func (ImageCompletedStatus) Name() string { return workers.ActionImageCompletedStatus }

func (ImageCompletedStatus) ValidateInput(d domain.ImageJobData) error {
	if d.ImportID == "" {
		return errs.MissingField("importId")
	}
	return nil
}

func (ImageCompletedStatus) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	if err := deps.Images.UpdateStatusByImportID(ctx, d.ImportID, domain.ImageStatusCompleted, ""); err != nil {
		deps.Log.Warn("Failed to mark image record completed",
			"job_id", ac.JobID, "import_id", d.ImportID, "error", err)
	}

	_ = deps.Broadcaster.Emit(domain.StatusEvent{
		ImportID:    d.ImportID,
		NoteID:      d.NoteID,
		Status:      domain.EventProcessing,
		Message:     "Image processed",
		Context:     domain.EventContextImageProcessing,
		IndentLevel: 2,
	})

	if d.NoteID != "" {
		deps.Tracker.MarkComplete(d.NoteID, services.CategoryImage, ac.JobID)
	}
	return d, nil
}

// CheckImageCompletion reports this job to the completion tracker once more.
// The tracker dedupes by job ID, so the duplicate mark from the previous
// action (or a retried job re-running the tail of the pipeline) cannot
// double-count; this final action just guarantees the mark happened even if
// an earlier status write was skipped.
type CheckImageCompletion struct{}

func (CheckImageCompletion) Name() string { return workers.ActionCheckImageCompletion }

func (CheckImageCompletion) ValidateInput(domain.ImageJobData) error { return nil }

func (CheckImageCompletion) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	if d.NoteID == "" {
		// Standalone image import, no note to account against.
		return d, nil
	}
	done := deps.Tracker.MarkComplete(d.NoteID, services.CategoryImage, ac.JobID)
	if done {
		deps.Log.Info("Last image job for note finished",
			"job_id", ac.JobID, "note_id", d.NoteID, "import_id", d.ImportID)
	}
	return d, nil
}
