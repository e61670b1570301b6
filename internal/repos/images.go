package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

type ImageRepo interface {
	// UpsertPending creates a pending record for the import ID if none exists
	// and returns the stored row either way. Fan-out calls this before the
	// image job is enqueued so the UI can show placeholders immediately.
	UpsertPending(ctx context.Context, image *domain.Image) (*domain.Image, error)
	// Upsert writes the full record keyed by import ID. The row ID is stable:
	// a second upsert for the same import ID updates in place.
	Upsert(ctx context.Context, image *domain.Image) (*domain.Image, error)
	GetByImportID(ctx context.Context, importID string) (*domain.Image, error)
	UpdateStatusByImportID(ctx context.Context, importID, status, processingError string) error
}

type imageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRepo(db *gorm.DB, baseLog *logger.Logger) ImageRepo {
	return &imageRepo{
		db:  db,
		log: baseLog.With("repo", "ImageRepo"),
	}
}

func (r *imageRepo) UpsertPending(ctx context.Context, image *domain.Image) (*domain.Image, error) {
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	if image.ProcessingStatus == "" {
		image.ProcessingStatus = domain.ImageStatusPending
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "import_id"}},
			DoNothing: true,
		}).
		Create(image).Error
	if err != nil {
		return nil, err
	}
	return r.GetByImportID(ctx, image.ImportID)
}

func (r *imageRepo) Upsert(ctx context.Context, image *domain.Image) (*domain.Image, error) {
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	image.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "import_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"note_id",
				"original_image_url",
				"thumbnail_image_url",
				"crop3x2_image_url",
				"crop4x3_image_url",
				"crop16x9_image_url",
				"original_width",
				"original_height",
				"original_size",
				"original_format",
				"processing_status",
				"processing_error",
				"updated_at",
			}),
		}).
		Create(image).Error
	if err != nil {
		return nil, err
	}
	// On conflict the generated ID was discarded; read back the stored row.
	return r.GetByImportID(ctx, image.ImportID)
}

func (r *imageRepo) GetByImportID(ctx context.Context, importID string) (*domain.Image, error) {
	if importID == "" {
		return nil, nil
	}
	var image domain.Image
	err := r.db.WithContext(ctx).Where("import_id = ?", importID).First(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *imageRepo) UpdateStatusByImportID(ctx context.Context, importID, status, processingError string) error {
	updates := map[string]interface{}{
		"processing_status": status,
		"updated_at":        time.Now().UTC(),
	}
	if processingError != "" || status == domain.ImageStatusFailed {
		updates["processing_error"] = processingError
	}
	return r.db.WithContext(ctx).
		Model(&domain.Image{}).
		Where("import_id = ?", importID).
		Updates(updates).Error
}
