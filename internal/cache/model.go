// Package cache implements the time-window cache that memoizes expensive
// upstream queries in a document store.
//
// One generic TimeWindow[T] serves every cached model; per-model behaviour is
// declared by a ModelSpec rather than by separate implementations.
package cache

import (
	"fmt"
	"time"

	"eng-metrics/internal/errdefs"
)

// ModelSpec declares the capabilities of one cached model.
type ModelSpec struct {
	// Name is the backing collection name.
	Name string
	// TTL is the default freshness window. Zero disables TTL filtering.
	TTL time.Duration
	// UniqueKey names the payload field used for idempotent upserts.
	UniqueKey string
	// StorageType discriminates logical kinds sharing one collection.
	StorageType string
	// ClearBeforeAdd purges the collection before every Save (latest snapshot only).
	ClearBeforeAdd bool
	// RequiredFields must be present in every Load filter.
	RequiredFields []string
}

func (m ModelSpec) validate() error {
	if m.Name == "" {
		return fmt.Errorf("cache model without a collection name: %w", errdefs.ErrConfiguration)
	}
	if m.TTL < 0 {
		return fmt.Errorf("cache model %s has negative ttl: %w", m.Name, errdefs.ErrConfiguration)
	}
	return nil
}

// Record is a cached payload together with its storage metadata.
type Record[T any] struct {
	Data        T         `json:"data"`
	StorageTime time.Time `json:"storage_time"`
	StorageType string    `json:"storage_type,omitempty"`
	UniqueKey   string    `json:"unique_key,omitempty"`
}

// Filter selects cached records.
type Filter struct {
	// Fields are equality constraints on top-level payload fields.
	Fields map[string]any
	// StoredSince constrains storage_time explicitly; when set, no TTL is applied.
	StoredSince time.Time
	// Limit caps the number of records returned. Zero means unlimited.
	Limit int
}

// Op identifies the cache operation reported in an Event.
type Op string

const (
	OpLoad   Op = "load"
	OpSave   Op = "save"
	OpUpdate Op = "update"
)

// Event describes one completed cache call.
type Event struct {
	Cache    string    `json:"cache"`
	Op       Op        `json:"op"`
	KeyCount int       `json:"key_count"`
	Info     string    `json:"info"`
	At       time.Time `json:"at"`
}

// Listener receives cache activity. Implementations must not block for long;
// they are called synchronously after every successful operation.
type Listener interface {
	CacheActivity(Event)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) CacheActivity(e Event) { f(e) }

type nopListener struct{}

func (nopListener) CacheActivity(Event) {}
