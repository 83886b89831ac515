package db

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calliopehq/persona-backend/internal/types"
)

// OpenSQLiteMemory opens a private in-memory database with the full
// schema applied. Used by tests.
func OpenSQLiteMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := gdb.AutoMigrate(
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
	); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return gdb, nil
}
