// Package sqlitekv implements the storage provider on an embedded SQLite
// database. Entries are stored as JSON blob rows keyed by (area, key).
package sqlitekv

import (
	"context"
	"encoding/json"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/prefstore/prefstore/internal/storage"
)

// DefaultSyncQuota mirrors the small capacity of a sync-scoped area.
const DefaultSyncQuota int64 = 100 * 1024

// Entry is one persisted key-value row.
type Entry struct {
	ID    uint64 `gorm:"primaryKey"`
	Area  string `gorm:"uniqueIndex:idx_area_key;size:16"`
	Key   string `gorm:"uniqueIndex:idx_area_key;size:256"`
	Value []byte `gorm:"type:blob"`
}

// TableName fixes the table name independent of gorm pluralization.
func (Entry) TableName() string {
	return "kv_entries"
}

// Provider is a SQLite-backed storage provider.
type Provider struct {
	db        *gorm.DB
	syncQuota int64
}

// Option configures a Provider.
type Option func(*Provider)

// WithSyncQuota overrides the byte quota of the sync area. Zero disables
// the limit.
func WithSyncQuota(quota int64) Option {
	return func(p *Provider) {
		p.syncQuota = quota
	}
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string, opts ...Option) (*Provider, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate kv schema")
	}

	p := &Provider{db: db, syncQuota: DefaultSyncQuota}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Area resolves a named area.
func (p *Provider) Area(name storage.AreaName) (storage.Area, error) {
	if !name.Valid() {
		return nil, storage.ErrAreaUnknown
	}

	a := &area{provider: p, name: string(name)}
	if name == storage.AreaSync {
		a.quota = p.syncQuota
	}

	return a, nil
}

// Close releases the underlying database connection.
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to resolve sql connection")
	}

	return errors.Wrap(sqlDB.Close(), "failed to close sqlite database")
}

type area struct {
	provider *Provider
	name     string
	quota    int64
}

const areaQueryPattern = "area = ?"

func (a *area) Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	var rows []Entry

	tx := a.provider.db.WithContext(ctx).Where(areaQueryPattern, a.name)
	if len(keys) > 0 {
		tx = tx.Where("key IN ?", keys)
	}

	if err := tx.Find(&rows).Error; err != nil {
		return nil, wrapDBError(err, "get")
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Key] = append(json.RawMessage(nil), row.Value...)
	}

	return out, nil
}

func (a *area) Set(ctx context.Context, values map[string]json.RawMessage) error {
	err := a.provider.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if a.quota > 0 {
			usage, err := usageExcluding(tx, a.name, values)
			if err != nil {
				return err
			}

			for k, v := range values {
				usage += int64(len(k) + len(v))
			}

			if usage > a.quota {
				return storage.ErrQuotaExceeded
			}
		}

		// Find-then-save upsert, one row per key.
		for k, v := range values {
			var row Entry

			result := tx.Where("area = ? AND key = ?", a.name, k).First(&row)
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				row = Entry{Area: a.name, Key: k, Value: v}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}

				continue
			}

			if result.Error != nil {
				return result.Error
			}

			row.Value = v
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			return err
		}

		return wrapDBError(err, "set")
	}

	return nil
}

func (a *area) Clear(ctx context.Context) error {
	result := a.provider.db.WithContext(ctx).Where(areaQueryPattern, a.name).Delete(&Entry{})
	if result.Error != nil {
		return wrapDBError(result.Error, "clear")
	}

	return nil
}

func (a *area) BytesInUse(ctx context.Context, keys []string) (int64, error) {
	var rows []Entry

	tx := a.provider.db.WithContext(ctx).Where(areaQueryPattern, a.name)
	if len(keys) > 0 {
		tx = tx.Where("key IN ?", keys)
	}

	if err := tx.Find(&rows).Error; err != nil {
		return 0, wrapDBError(err, "getBytesInUse")
	}

	var total int64
	for _, row := range rows {
		total += int64(len(row.Key) + len(row.Value))
	}

	return total, nil
}

// usageExcluding sums the footprint of rows whose keys are not about to be
// replaced, keeping the quota check consistent with BytesInUse accounting.
func usageExcluding(tx *gorm.DB, areaName string, replaced map[string]json.RawMessage) (int64, error) {
	var rows []Entry

	if err := tx.Where(areaQueryPattern, areaName).Find(&rows).Error; err != nil {
		return 0, err
	}

	var total int64

	for _, row := range rows {
		if _, ok := replaced[row.Key]; ok {
			continue
		}

		total += int64(len(row.Key) + len(row.Value))
	}

	return total, nil
}

func wrapDBError(err error, op string) error {
	return errors.Wrapf(storage.ErrAreaUnavailable, "%s failed: %v", op, err)
}
