package app

import (
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/repos"
)

type Repos struct {
	Notes        repos.NoteRepo
	Images       repos.ImageRepo
	Ingredients  repos.IngredientRepo
	Instructions repos.InstructionRepo
	Sources      repos.SourceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Notes:        repos.NewNoteRepo(db, log),
		Images:       repos.NewImageRepo(db, log),
		Ingredients:  repos.NewIngredientRepo(db, log),
		Instructions: repos.NewInstructionRepo(db, log),
		Sources:      repos.NewSourceRepo(db, log),
	}
}
