package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/calliopehq/persona-backend/internal/logger"
	"github.com/calliopehq/persona-backend/internal/types"
	"github.com/calliopehq/persona-backend/internal/utils"
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
	postgresName := utils.GetEnv("POSTGRES_NAME", "persona", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Persona{},
		&types.BrandProfile{},
		&types.Campaign{},
		&types.Product{},
		&types.Strategy{},
		&types.ChatSession{},
		&types.ChatMessage{},
		&types.SessionInsight{},
		&types.ChatConfig{},
		&types.KnowledgeEntry{},
		&types.ResourceVersion{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	// Sessions own their messages; deleting a subject cascades through.
	if err := s.db.Exec(`
		ALTER TABLE "chat_message"
		DROP CONSTRAINT IF EXISTS "fk_chat_message_session_id";
	`).Error; err != nil {
		return fmt.Errorf("failed to reset fk_chat_message_session_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "chat_message"
		ADD CONSTRAINT "fk_chat_message_session_id"
		FOREIGN KEY ("session_id")
		REFERENCES "chat_session"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_chat_message_session_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "chat_session"
		DROP CONSTRAINT IF EXISTS "fk_chat_session_persona_id";
	`).Error; err != nil {
		return fmt.Errorf("failed to reset fk_chat_session_persona_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "chat_session"
		ADD CONSTRAINT "fk_chat_session_persona_id"
		FOREIGN KEY ("persona_id")
		REFERENCES "persona"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_chat_session_persona_id: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
