// Package docstore provides the document stores that back the time-window cache.
//
// A store holds named collections of Documents. Every document carries its
// storage metadata next to an opaque JSON body; the top-level scalar fields of
// that body are what Query.Fields filters on.
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// Document is a single stored record.
type Document struct {
	ID          string          `json:"id"`
	StorageTime time.Time       `json:"storage_time"`
	StorageType string          `json:"storage_type,omitempty"`
	UniqueKey   string          `json:"unique_key,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// Query selects documents of a collection. Results are newest first.
type Query struct {
	// Fields are equality constraints on top-level body fields.
	Fields map[string]any
	// StorageType, when set, restricts results to that discriminator.
	StorageType string
	// StoredSince, when non-zero, restricts results to storage_time >= StoredSince.
	StoredSince time.Time
	// Limit caps the number of results. Zero means unlimited.
	Limit int
}

// Store is the backing store contract used by the cache layer.
type Store interface {
	// Find returns the documents of collection matching q, newest first.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	// Upsert writes docs, replacing any existing document with the same ID.
	Upsert(ctx context.Context, collection string, docs []Document) error
	// Insert appends docs. IDs are expected to be fresh.
	Insert(ctx context.Context, collection string, docs []Document) error
	// Clear removes every document of collection.
	Clear(ctx context.Context, collection string) error
	// Close releases the underlying resources.
	Close() error
}

// UpsertID derives the document ID used for keyed upserts.
func UpsertID(storageType, uniqueKey string) string {
	if storageType == "" {
		return uniqueKey
	}
	return storageType + "|" + uniqueKey
}

// ValidateFields rejects empty field names and non-scalar values.
func ValidateFields(fields map[string]any) error {
	for name, v := range fields {
		if name == "" {
			return fmt.Errorf("empty field name in filter")
		}
		switch v.(type) {
		case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		default:
			return fmt.Errorf("field %q has unsupported filter value of type %T", name, v)
		}
	}
	return nil
}

// Matches reports whether doc satisfies the query constraints.
func (q Query) Matches(doc Document) (bool, error) {
	if q.StorageType != "" && doc.StorageType != q.StorageType {
		return false, nil
	}
	if !q.StoredSince.IsZero() && doc.StorageTime.Before(q.StoredSince) {
		return false, nil
	}
	if len(q.Fields) == 0 {
		return true, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		return false, fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
	}

	for name, want := range q.Fields {
		got, ok := body[name]
		if !ok {
			return false, nil
		}
		wantRaw, err := json.Marshal(want)
		if err != nil {
			return false, fmt.Errorf("failed to encode filter field %q: %w", name, err)
		}
		if !sameJSON(got, wantRaw) {
			return false, nil
		}
	}
	return true, nil
}

// containment renders the field constraints as a JSON object, used by
// backends that push filtering down to the server.
func (q Query) containment() ([]byte, error) {
	if len(q.Fields) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(q.Fields)
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return false
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// filterDocs applies q to an unordered candidate set and returns the ordered, limited result.
func filterDocs(candidates []Document, q Query) ([]Document, error) {
	result := make([]Document, 0, len(candidates))
	for _, d := range candidates {
		ok, err := q.Matches(d)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, d)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].StorageTime.Equal(result[j].StorageTime) {
			return result[i].StorageTime.After(result[j].StorageTime)
		}
		return result[i].ID < result[j].ID
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}
