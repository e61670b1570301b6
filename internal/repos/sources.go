package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

type SourceRepo interface {
	// Upsert writes the note's source, keyed by note_id. A note has at most
	// one source record.
	Upsert(ctx context.Context, src *domain.Source) error
	GetByNoteID(ctx context.Context, noteID uuid.UUID) (*domain.Source, error)
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{
		db:  db,
		log: baseLog.With("repo", "SourceRepo"),
	}
}

func (r *sourceRepo) Upsert(ctx context.Context, src *domain.Source) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "note_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"url", "domain", "updated_at",
			}),
		}).
		Create(src).Error
}

func (r *sourceRepo) GetByNoteID(ctx context.Context, noteID uuid.UUID) (*domain.Source, error) {
	var src domain.Source
	err := r.db.WithContext(ctx).Where("note_id = ?", noteID).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}
