package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

type NoteRepo interface {
	Create(ctx context.Context, note *domain.Note) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error)
	GetByImportID(ctx context.Context, importID string) (*domain.Note, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateTags(ctx context.Context, id uuid.UUID, tags datatypes.JSON) error
}

type noteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoteRepo(db *gorm.DB, baseLog *logger.Logger) NoteRepo {
	return &noteRepo{
		db:  db,
		log: baseLog.With("repo", "NoteRepo"),
	}
}

func (r *noteRepo) Create(ctx context.Context, note *domain.Note) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	if note.Status == "" {
		note.Status = domain.NoteStatusPending
	}
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *noteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Note, error) {
	var note domain.Note
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *noteRepo) GetByImportID(ctx context.Context, importID string) (*domain.Note, error) {
	if importID == "" {
		return nil, nil
	}
	var note domain.Note
	err := r.db.WithContext(ctx).Where("import_id = ?", importID).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *noteRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Note{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *noteRepo) UpdateTags(ctx context.Context, id uuid.UUID, tags datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&domain.Note{}).
		Where("id = ?", id).
		Update("tags", tags).Error
}
