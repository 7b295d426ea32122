package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vitarp-go/internal/platform/errors"
)

// Open initializes the SQLite database holding registration credentials and
// the console cache. The path is parameterized by configuration; the parent
// directory is created on demand.
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, errors.New(errors.KindInvalidParam, "storage.open", "database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindIO, "storage.open", "create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "storage.open", "open database", err)
	}

	if err := db.AutoMigrate(&RegistrationRecord{}, &ConsoleEntry{}); err != nil {
		return nil, errors.Wrap(errors.KindIO, "storage.open", "migrate schema", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrationInitial{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}

// OpenInMemory opens a throwaway database for tests. Each call gets its own
// shared-cache namespace so parallel tests do not see each other's rows.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, "storage.open_memory", "open database", err)
	}
	if err := db.AutoMigrate(&RegistrationRecord{}, &ConsoleEntry{}); err != nil {
		return nil, errors.Wrap(errors.KindIO, "storage.open_memory", "migrate schema", err)
	}
	return db, nil
}
