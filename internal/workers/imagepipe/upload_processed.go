package imagepipe

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/workers"
)

// UploadProcessed pushes every rendered derivative to object storage in
// parallel. Settle-all semantics: each upload succeeds or fails on its own,
// failures only cost that derivative its URL. The action itself never raises.
type UploadProcessed struct{}

func (UploadProcessed) Name() string { return workers.ActionUploadProcessed }

func (UploadProcessed) ValidateInput(d domain.ImageJobData) error {
	if err := validateBase(d); err != nil {
		return err
	}
	if d.OriginalPath == "" {
		return errs.MissingField("originalPath")
	}
	return nil
}

func (UploadProcessed) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	if deps.Store == nil {
		deps.Log.Debug("Object storage not configured, skipping derivative uploads",
			"job_id", ac.JobID, "import_id", d.ImportID)
		return d, nil
	}

	own := owner(d)
	uploads := []struct {
		derivative string
		path       string
		target     *string
	}{
		{objstore.DerivativeOriginal, d.OriginalPath, &d.StorageOriginalURL},
		{objstore.DerivativeThumbnail, d.ThumbnailPath, &d.StorageThumbnailURL},
		{objstore.DerivativeCrop3x2, d.Crop3x2Path, &d.StorageCrop3x2URL},
		{objstore.DerivativeCrop4x3, d.Crop4x3Path, &d.StorageCrop4x3URL},
		{objstore.DerivativeCrop16x9, d.Crop16x9Path, &d.StorageCrop16x9URL},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0
	for _, up := range uploads {
		if up.path == "" {
			continue
		}
		wg.Add(1)
		go func(derivative, path string, target *string) {
			defer wg.Done()
			key := objstore.ProcessedKey(d.ImportID, own, derivative, filepath.Ext(path))
			res, err := deps.Store.UploadFile(ctx, path, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				deps.Log.Warn("Derivative upload failed",
					"job_id", ac.JobID,
					"import_id", d.ImportID,
					"derivative", derivative,
					"key", key,
					"error", err,
				)
				return
			}
			*target = res.URL
		}(up.derivative, up.path, up.target)
	}
	wg.Wait()

	if failed > 0 {
		deps.Log.Warn("Some derivative uploads failed",
			"job_id", ac.JobID, "import_id", d.ImportID, "failed", failed)
	}
	return d, nil
}
