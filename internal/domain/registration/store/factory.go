package store

import (
	"gorm.io/gorm"

	"vitarp-go/internal/platform/errors"
)

// NewBackend selects the durable backend from configuration. SQLite is the
// default; redis exists for dev setups that share a pairing database across
// devices.
func NewBackend(cfg Config, db *gorm.DB) (Backend, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(db)
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, errors.New(errors.KindInvalidParam, "regstore.factory",
			"unknown registration store driver: "+cfg.Driver)
	}
}
