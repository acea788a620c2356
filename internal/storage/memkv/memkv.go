// Package memkv implements an in-memory storage provider. It backs the
// daemon's ephemeral mode and most tests.
package memkv

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/prefstore/prefstore/internal/storage"
)

// DefaultSyncQuota mirrors the small capacity of a sync-scoped area.
const DefaultSyncQuota int64 = 100 * 1024

// Provider holds one map-backed area per recognized area name.
type Provider struct {
	mu     sync.Mutex
	areas  map[storage.AreaName]*area
	closed bool
}

// New creates a provider with an unbounded local area and a sync area
// limited to DefaultSyncQuota bytes.
func New() *Provider {
	return NewWithQuota(DefaultSyncQuota)
}

// NewWithQuota creates a provider whose sync area is limited to quota
// bytes. A quota of zero disables the limit.
func NewWithQuota(quota int64) *Provider {
	p := &Provider{areas: make(map[storage.AreaName]*area)}
	p.areas[storage.AreaLocal] = &area{provider: p, values: make(map[string]json.RawMessage)}
	p.areas[storage.AreaSync] = &area{provider: p, values: make(map[string]json.RawMessage), quota: quota}

	return p
}

// Area resolves a named area.
func (p *Provider) Area(name storage.AreaName) (storage.Area, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, storage.ErrAreaUnavailable
	}

	a, ok := p.areas[name]
	if !ok {
		return nil, storage.ErrAreaUnknown
	}

	return a, nil
}

// Close marks the provider unavailable and drops all stored data.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.areas = make(map[storage.AreaName]*area)

	return nil
}

type area struct {
	provider *Provider
	values   map[string]json.RawMessage
	quota    int64
}

func (a *area) Get(_ context.Context, keys []string) (map[string]json.RawMessage, error) {
	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()

	if a.provider.closed {
		return nil, storage.ErrAreaUnavailable
	}

	out := make(map[string]json.RawMessage)

	if len(keys) == 0 {
		for k, v := range a.values {
			out[k] = append(json.RawMessage(nil), v...)
		}

		return out, nil
	}

	for _, k := range keys {
		if v, ok := a.values[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}

	return out, nil
}

func (a *area) Set(_ context.Context, values map[string]json.RawMessage) error {
	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()

	if a.provider.closed {
		return storage.ErrAreaUnavailable
	}

	if a.quota > 0 {
		var total int64

		for k, v := range a.values {
			if _, replaced := values[k]; replaced {
				continue
			}

			total += int64(len(k) + len(v))
		}

		for k, v := range values {
			total += int64(len(k) + len(v))
		}

		if total > a.quota {
			return storage.ErrQuotaExceeded
		}
	}

	for k, v := range values {
		a.values[k] = append(json.RawMessage(nil), v...)
	}

	return nil
}

func (a *area) Clear(_ context.Context) error {
	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()

	if a.provider.closed {
		return storage.ErrAreaUnavailable
	}

	a.values = make(map[string]json.RawMessage)

	return nil
}

func (a *area) BytesInUse(_ context.Context, keys []string) (int64, error) {
	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()

	if a.provider.closed {
		return 0, storage.ErrAreaUnavailable
	}

	var total int64

	if len(keys) == 0 {
		for k, v := range a.values {
			total += int64(len(k) + len(v))
		}

		return total, nil
	}

	for _, k := range keys {
		if v, ok := a.values[k]; ok {
			total += int64(len(k) + len(v))
		}
	}

	return total, nil
}
