package imagepipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/workers"
)

// ProcessImage renders the five derivatives into the job's output directory.
// Decode failures are terminal: a corrupt file stays corrupt across retries.
type ProcessImage struct{}

func (ProcessImage) Name() string { return workers.ActionProcessImage }

func (ProcessImage) ValidateInput(d domain.ImageJobData) error {
	if err := validateBase(d); err != nil {
		return err
	}
	if d.OutputDir == "" {
		return errs.MissingField("outputDir")
	}
	return nil
}

func (ProcessImage) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	res, err := deps.Media.Process(ctx, d.ImagePath, d.OutputDir, owner(d))
	if err != nil {
		return d, err
	}

	d.Metadata = &domain.ImageMetadata{
		Width:  res.Width,
		Height: res.Height,
		Format: res.Format,
	}
	if f, ok := res.Derivatives[objstore.DerivativeOriginal]; ok {
		d.OriginalPath, d.OriginalSize = f.Path, f.Size
	}
	if f, ok := res.Derivatives[objstore.DerivativeThumbnail]; ok {
		d.ThumbnailPath, d.ThumbnailSize = f.Path, f.Size
	}
	if f, ok := res.Derivatives[objstore.DerivativeCrop3x2]; ok {
		d.Crop3x2Path, d.Crop3x2Size = f.Path, f.Size
	}
	if f, ok := res.Derivatives[objstore.DerivativeCrop4x3]; ok {
		d.Crop4x3Path, d.Crop4x3Size = f.Path, f.Size
	}
	if f, ok := res.Derivatives[objstore.DerivativeCrop16x9]; ok {
		d.Crop16x9Path, d.Crop16x9Size = f.Path, f.Size
	}

	deps.Log.Debug("Derivatives rendered",
		"job_id", ac.JobID,
		"import_id", d.ImportID,
		"format", res.Format,
		"width", res.Width,
		"height", res.Height,
	)
	return d, nil
}
