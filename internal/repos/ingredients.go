package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

type IngredientRepo interface {
	// Upsert writes one ingredient line keyed by (note_id, line_index), so a
	// retried job overwrites its own earlier write instead of duplicating it.
	Upsert(ctx context.Context, ing *domain.Ingredient) error
	ListByNoteID(ctx context.Context, noteID uuid.UUID) ([]*domain.Ingredient, error)
}

type ingredientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngredientRepo(db *gorm.DB, baseLog *logger.Logger) IngredientRepo {
	return &ingredientRepo{
		db:  db,
		log: baseLog.With("repo", "IngredientRepo"),
	}
}

func (r *ingredientRepo) Upsert(ctx context.Context, ing *domain.Ingredient) error {
	if ing.ID == uuid.Nil {
		ing.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "note_id"}, {Name: "line_index"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"raw", "quantity", "unit", "name", "updated_at",
			}),
		}).
		Create(ing).Error
}

func (r *ingredientRepo) ListByNoteID(ctx context.Context, noteID uuid.UUID) ([]*domain.Ingredient, error) {
	var out []*domain.Ingredient
	err := r.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("line_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
