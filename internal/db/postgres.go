package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "platebook", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&domain.Note{},
		&domain.Ingredient{},
		&domain.Instruction{},
		&domain.Source{},
		&domain.Image{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for name, stmt := range map[string]string{
		"fk_ingredient_note_id": `
			ALTER TABLE "ingredient"
			ADD CONSTRAINT "fk_ingredient_note_id"
			FOREIGN KEY ("note_id") REFERENCES "note"("id")
			ON DELETE CASCADE`,
		"fk_instruction_note_id": `
			ALTER TABLE "instruction"
			ADD CONSTRAINT "fk_instruction_note_id"
			FOREIGN KEY ("note_id") REFERENCES "note"("id")
			ON DELETE CASCADE`,
		"fk_source_note_id": `
			ALTER TABLE "source"
			ADD CONSTRAINT "fk_source_note_id"
			FOREIGN KEY ("note_id") REFERENCES "note"("id")
			ON DELETE CASCADE`,
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			// Re-running migrations hits existing constraints; not an error.
			s.log.Debug("Constraint not added", "constraint", name, "error", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
