package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"vitarp-go/internal/platform/errors"
)

// Migration is one versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord tracks which migrations have been applied.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies pending migrations in registration order.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrationManager(db *gorm.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

func (m *MigrationManager) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// RunMigrations executes every migration that has no record yet, each in its
// own transaction.
func (m *MigrationManager) RunMigrations() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return errors.Wrap(errors.KindIO, "migration.create_table", "create migration table", err)
	}

	var appliedVersions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &appliedVersions).Error; err != nil {
		return errors.Wrap(errors.KindIO, "migration.get_applied", "read applied migrations", err)
	}
	applied := make(map[string]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:   migration.Version(),
				Name:      migration.Description(),
				AppliedAt: time.Now(),
			}).Error
		})
		if err != nil {
			return errors.Wrap(errors.KindIO, "migration.up",
				fmt.Sprintf("apply migration %s", migration.Version()), err)
		}
	}
	return nil
}

// History returns applied migrations, newest first.
func (m *MigrationManager) History() ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.Order("applied_at DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindIO, "migration.history", "read migration history", err)
	}
	return records, nil
}

// migrationInitial backfills indexes for databases created before AutoMigrate
// covered the console cache.
type migrationInitial struct{}

func (migrationInitial) Version() string     { return "001" }
func (migrationInitial) Description() string { return "initial registration and console tables" }

func (migrationInitial) Up(db *gorm.DB) error {
	return db.AutoMigrate(&RegistrationRecord{}, &ConsoleEntry{})
}

func (migrationInitial) Down(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&ConsoleEntry{}); err != nil {
		return err
	}
	return db.Migrator().DropTable(&RegistrationRecord{})
}
