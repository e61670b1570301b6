package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

type InstructionRepo interface {
	// Upsert writes one step keyed by (note_id, step_index).
	Upsert(ctx context.Context, ins *domain.Instruction) error
	ListByNoteID(ctx context.Context, noteID uuid.UUID) ([]*domain.Instruction, error)
}

type instructionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInstructionRepo(db *gorm.DB, baseLog *logger.Logger) InstructionRepo {
	return &instructionRepo{
		db:  db,
		log: baseLog.With("repo", "InstructionRepo"),
	}
}

func (r *instructionRepo) Upsert(ctx context.Context, ins *domain.Instruction) error {
	if ins.ID == uuid.Nil {
		ins.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "note_id"}, {Name: "step_index"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "updated_at",
			}),
		}).
		Create(ins).Error
}

func (r *instructionRepo) ListByNoteID(ctx context.Context, noteID uuid.UUID) ([]*domain.Instruction, error) {
	var out []*domain.Instruction
	err := r.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("step_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
