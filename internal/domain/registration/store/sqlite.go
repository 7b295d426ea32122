package store

import (
	"context"
	"encoding/base64"
	"time"

	"gorm.io/gorm"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/platform/errors"
	"vitarp-go/internal/platform/storage"
)

type sqliteBackend struct {
	db *gorm.DB
}

// NewSQLite builds the default SQLite-backed credentials store.
func NewSQLite(db *gorm.DB) (Backend, error) {
	if db == nil {
		return nil, errors.New(errors.KindInvalidParam, "regstore.sqlite", "database handle required")
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, creds model.Credentials) error {
	row := toRecord(creds)
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("host_id = ?", creds.HostID).
			Delete(&storage.RegistrationRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return errors.Wrap(errors.KindIO, "regstore.save", "store credentials", err)
	}
	return nil
}

func (b *sqliteBackend) GetByIP(ctx context.Context, ip string) (model.Credentials, error) {
	var row storage.RegistrationRecord
	err := b.db.WithContext(ctx).Where("ip = ?", ip).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return model.Credentials{}, errors.New(errors.KindNotFound, "regstore.get",
			"no registration for "+ip)
	}
	if err != nil {
		return model.Credentials{}, errors.Wrap(errors.KindIO, "regstore.get", "read credentials", err)
	}
	return fromRecord(row)
}

func (b *sqliteBackend) DeleteByIP(ctx context.Context, ip string) error {
	result := b.db.WithContext(ctx).Where("ip = ?", ip).Delete(&storage.RegistrationRecord{})
	if result.Error != nil {
		return errors.Wrap(errors.KindIO, "regstore.delete", "delete credentials", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.KindNotFound, "regstore.delete", "no registration for "+ip)
	}
	return nil
}

func (b *sqliteBackend) List(ctx context.Context) ([]model.Credentials, error) {
	var rows []storage.RegistrationRecord
	if err := b.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindIO, "regstore.list", "list credentials", err)
	}
	out := make([]model.Credentials, 0, len(rows))
	for _, row := range rows {
		creds, err := fromRecord(row)
		if err != nil {
			continue // skip rows whose key material is unreadable
		}
		out = append(out, creds)
	}
	return out, nil
}

func (b *sqliteBackend) Close(context.Context) error {
	return nil
}

// toRecord encodes the two 16-byte secrets as base64 so the bytes survive
// the round trip exactly.
func toRecord(creds model.Credentials) storage.RegistrationRecord {
	registeredAt := creds.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}
	return storage.RegistrationRecord{
		HostID:       creds.HostID,
		IP:           creds.IP,
		Nickname:     creds.Nickname,
		Target:       string(creds.Target),
		KeyType:      creds.KeyType,
		RegistKey:    base64.StdEncoding.EncodeToString(creds.RegistKey[:]),
		RegistHex8:   creds.RegistHex8,
		MorningKey:   base64.StdEncoding.EncodeToString(creds.MorningKey[:]),
		WakeCred:     creds.WakeCred,
		AccountID:    creds.AccountID,
		Valid:        creds.Valid,
		RegisteredAt: registeredAt,
	}
}

func fromRecord(row storage.RegistrationRecord) (model.Credentials, error) {
	creds := model.Credentials{
		HostID:       row.HostID,
		IP:           row.IP,
		Nickname:     row.Nickname,
		Target:       console.Generation(row.Target),
		KeyType:      row.KeyType,
		RegistHex8:   row.RegistHex8,
		WakeCred:     row.WakeCred,
		AccountID:    row.AccountID,
		Valid:        row.Valid,
		RegisteredAt: row.RegisteredAt,
	}
	if err := decodeKey(row.RegistKey, &creds.RegistKey); err != nil {
		return model.Credentials{}, err
	}
	if err := decodeKey(row.MorningKey, &creds.MorningKey); err != nil {
		return model.Credentials{}, err
	}
	return creds, nil
}

func decodeKey(encoded string, out *[model.KeySize]byte) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != model.KeySize {
		return errors.New(errors.KindInvalidData, "regstore.decode", "malformed key material")
	}
	copy(out[:], raw)
	return nil
}
