package imagepipe

import (
	"context"
	"os"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/workers"
)

// CleanupLocalFiles removes the scratch files left behind by processing.
// Every removal is independent and a file already gone counts as removed.
// The action never raises: by this point the record is persisted and leaking
// a temp file is not worth a retry loop.
type CleanupLocalFiles struct{}

func (CleanupLocalFiles) Name() string { return workers.ActionCleanupLocalFiles }

func (CleanupLocalFiles) ValidateInput(domain.ImageJobData) error { return nil }

func (CleanupLocalFiles) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	paths := []string{
		d.ImagePath,
		d.OriginalPath,
		d.ThumbnailPath,
		d.Crop3x2Path,
		d.Crop4x3Path,
		d.Crop16x9Path,
	}

	removed, failed := 0, 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			failed++
			deps.Log.Warn("Failed to remove local file",
				"job_id", ac.JobID, "import_id", d.ImportID, "path", p, "error", err)
			continue
		}
		removed++
	}

	// The output dir only goes away if it is empty; other jobs may share it.
	if d.OutputDir != "" {
		if err := os.Remove(d.OutputDir); err != nil && !os.IsNotExist(err) {
			deps.Log.Debug("Output directory not removed",
				"job_id", ac.JobID, "path", d.OutputDir, "error", err)
		}
	}

	deps.Log.Debug("Local cleanup finished",
		"job_id", ac.JobID, "import_id", d.ImportID, "removed", removed, "failed", failed)
	return d, nil
}
