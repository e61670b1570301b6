package imagepipe

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/workers"
)

// SaveImage upserts the image record keyed by import ID and pins the row ID
// onto the job data. Each URL column takes the storage URL when the upload
// landed, otherwise a local /images/ URL derived from the derivative path, so
// a record is servable even when object storage is absent. Database errors
// propagate: persistence is the one step the pipeline cannot shrug off, and
// the upsert makes the retry safe.
type SaveImage struct{}

func (SaveImage) Name() string { return workers.ActionSaveImage }

func (SaveImage) ValidateInput(d domain.ImageJobData) error {
	if d.ImportID == "" {
		return errs.MissingField("importId")
	}
	return nil
}

func (SaveImage) Execute(ctx context.Context, ac *workers.ActionContext, d domain.ImageJobData, deps *workers.Deps) (domain.ImageJobData, error) {
	base := deps.ImageBaseURL
	record := &domain.Image{
		ImportID:          d.ImportID,
		OriginalImageURL:  imageURL(base, firstNonEmpty(d.StorageOriginalURL, d.StorageURL), firstNonEmpty(d.OriginalPath, d.ImagePath)),
		ThumbnailImageURL: imageURL(base, d.StorageThumbnailURL, d.ThumbnailPath),
		Crop3x2ImageURL:   imageURL(base, d.StorageCrop3x2URL, d.Crop3x2Path),
		Crop4x3ImageURL:   imageURL(base, d.StorageCrop4x3URL, d.Crop4x3Path),
		Crop16x9ImageURL:  imageURL(base, d.StorageCrop16x9URL, d.Crop16x9Path),
		OriginalSize:      d.OriginalSize,
		ProcessingStatus:  domain.ImageStatusCompleted,
		ProcessingError:   "",
	}
	if d.NoteID != "" {
		noteID, err := uuid.Parse(d.NoteID)
		if err != nil {
			return d, errs.FatalWrap(err, errs.TypeValidation, "invalid note id")
		}
		record.NoteID = &noteID
	}
	if d.Metadata != nil {
		record.OriginalWidth = d.Metadata.Width
		record.OriginalHeight = d.Metadata.Height
		record.OriginalFormat = d.Metadata.Format
	}

	saved, err := deps.Images.Upsert(ctx, record)
	if err != nil {
		return d, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "save image record")
	}
	// ImageID is assigned exactly once; later retries land on the same row.
	d.ImageID = saved.ID.String()

	deps.Log.Debug("Image record saved",
		"job_id", ac.JobID, "import_id", d.ImportID, "image_id", d.ImageID)
	return d, nil
}

// imageURL picks the storage URL when the upload succeeded, otherwise falls
// back to {base}/images/{basename(path)} where the frontend serves local
// files. Empty when the derivative was never rendered.
func imageURL(base, storageURL, path string) string {
	if storageURL != "" {
		return storageURL
	}
	if path == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/images/" + filepath.Base(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
