package imagepipe

import (
	"context"
	"os"
	"path/filepath"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/workers"
)

// UploadOriginal pushes the untouched source file to object storage. The
// upload is best-effort: a storage failure leaves StorageKey/StorageURL empty
// and the pipeline continues with local processing. A missing source file is
// fatal, though: nothing downstream can run without it.
type UploadOriginal struct{}

func (UploadOriginal) Name() string { return workers.ActionUploadOriginal }

func (UploadOriginal) ValidateInput(d domain.ImageJobData) error {
	return validateBase(d)
}

func (UploadOriginal) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	if _, err := os.Stat(d.ImagePath); err != nil {
		if os.IsNotExist(err) {
			return d, errs.FatalWrap(err, errs.TypeWorker, "source image file missing")
		}
		return d, errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "stat source image")
	}

	if deps.Store == nil {
		deps.Log.Debug("Object storage not configured, skipping original upload",
			"job_id", ac.JobID, "import_id", d.ImportID)
		return d, nil
	}

	filename := d.Filename
	if filename == "" {
		filename = filepath.Base(d.ImagePath)
	}
	key := objstore.OriginalKey(d.ImportID, filename)
	res, err := deps.Store.UploadFile(ctx, d.ImagePath, key)
	if err != nil {
		deps.Log.Warn("Original upload failed, continuing without it",
			"job_id", ac.JobID, "import_id", d.ImportID, "key", key, "error", err)
		return d, nil
	}
	d.StorageKey = res.Key
	d.StorageURL = res.URL
	return d, nil
}
