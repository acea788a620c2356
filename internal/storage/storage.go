// Package storage defines the asynchronous key-value contract the settings
// subsystem persists through. Concrete providers live in sub-packages; the
// operation queue and the settings store depend only on this package.
package storage

import (
	"context"
	"encoding/json"
)

// AreaName identifies a persisted-store partition.
type AreaName string

const (
	// AreaLocal is the large-capacity area local to this installation.
	AreaLocal AreaName = "local"
	// AreaSync is the small, quota-limited area understood to be synced
	// by the host environment.
	AreaSync AreaName = "sync"
)

// Valid reports whether the area name is one of the recognized partitions.
func (a AreaName) Valid() bool {
	return a == AreaLocal || a == AreaSync
}

// Area is the narrow contract of one persisted-store partition. All calls
// may block; callers serialize access through the operation queue.
type Area interface {
	// Get returns the stored values for the given keys. A nil or empty
	// keys slice returns every stored entry.
	Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error)

	// Set stores every entry of values, replacing existing entries.
	Set(ctx context.Context, values map[string]json.RawMessage) error

	// Clear removes every entry from the area.
	Clear(ctx context.Context) error

	// BytesInUse returns the storage footprint of the given keys, or of
	// the whole area when keys is nil.
	BytesInUse(ctx context.Context, keys []string) (int64, error)
}

// Provider resolves named areas and owns their shared resources.
type Provider interface {
	Area(name AreaName) (Area, error)
	Close() error
}
