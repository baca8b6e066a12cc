package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eng-metrics/internal/errdefs"
)

func doc(id string, stored time.Time, body string) Document {
	return Document{ID: id, StorageTime: stored, Body: []byte(body)}
}

func TestQuery_Matches(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	d := Document{
		ID:          "a",
		StorageTime: now,
		StorageType: "points",
		Body:        []byte(`{"query_key":"jql:project = X","team":"core","board":42,"open":true}`),
	}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty query", Query{}, true},
		{"string field", Query{Fields: map[string]any{"team": "core"}}, true},
		{"string mismatch", Query{Fields: map[string]any{"team": "web"}}, false},
		{"int vs json number", Query{Fields: map[string]any{"board": 42}}, true},
		{"float vs json number", Query{Fields: map[string]any{"board": 42.0}}, true},
		{"bool field", Query{Fields: map[string]any{"open": true}}, true},
		{"missing field", Query{Fields: map[string]any{"user": "bob"}}, false},
		{"storage type", Query{StorageType: "points"}, true},
		{"storage type mismatch", Query{StorageType: "timing"}, false},
		{"stored since boundary", Query{StoredSince: now}, true},
		{"stored since later", Query{StoredSince: now.Add(time.Second)}, false},
	}

	for _, tt := range tests {
		got, err := tt.q.Matches(d)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidateFields(t *testing.T) {
	if err := ValidateFields(map[string]any{"a": "x", "b": 3, "c": true}); err != nil {
		t.Errorf("expected scalar fields to validate, got %v", err)
	}
	if err := ValidateFields(map[string]any{"": "x"}); err == nil {
		t.Error("expected empty field name to fail")
	}
	if err := ValidateFields(map[string]any{"a": []string{"x"}}); err == nil {
		t.Error("expected slice value to fail")
	}
}

func TestMemoryStore_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()

	if err := s.Upsert(ctx, "c", []Document{doc("k1", t0, `{"v":1}`)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, "c", []Document{doc("k1", t0.Add(time.Minute), `{"v":2}`)}); err != nil {
		t.Fatal(err)
	}

	if got := s.Count("c"); got != 1 {
		t.Fatalf("expected 1 document after double upsert, got %d", got)
	}
	docs, _ := s.Find(ctx, "c", Query{Fields: map[string]any{"v": 2}})
	if len(docs) != 1 {
		t.Errorf("expected the replaced document to be found, got %d", len(docs))
	}
}

func TestMemoryStore_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Now()

	_ = s.Insert(ctx, "c", []Document{
		doc("old", t0.Add(-2*time.Hour), `{}`),
		doc("new", t0, `{}`),
		doc("mid", t0.Add(-time.Hour), `{}`),
	})

	docs, err := s.Find(ctx, "c", Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].ID != "new" || docs[1].ID != "mid" {
		t.Errorf("expected [new mid], got %+v", docs)
	}

	_ = s.Clear(ctx, "c")
	if s.Count("c") != 0 {
		t.Error("expected collection to be empty after Clear")
	}
}

func TestFileStore_Persistence(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()
	t0 := time.Now().Truncate(time.Second)

	store1, err := NewFileStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store1.Upsert(ctx, "points", []Document{
		doc("a", t0, `{"query_key":"a"}`),
		doc("b", t0, `{"query_key":"b"}`),
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cachePath := filepath.Join(tmpDir, "points.jsonl")
	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		t.Errorf("Cache file does not exist: %s", cachePath)
	}

	// Load into new store
	store2, _ := NewFileStore(tmpDir)
	docs, err := store2.Find(ctx, "points", Query{Fields: map[string]any{"query_key": "b"}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Fatalf("expected document b after reload, got %+v", docs)
	}
	if !docs[0].StorageTime.Equal(t0) {
		t.Errorf("expected storage time %v, got %v", t0, docs[0].StorageTime)
	}

	// Same ID again must not duplicate
	_ = store2.Upsert(ctx, "points", []Document{doc("b", t0, `{"query_key":"b"}`)})
	all, _ := store2.Find(ctx, "points", Query{})
	if len(all) != 2 {
		t.Errorf("expected 2 documents after re-upsert, got %d", len(all))
	}

	if err := store2.Clear(ctx, "points"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cachePath); !os.IsNotExist(err) {
		t.Error("expected cache file to be removed by Clear")
	}
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore failed: %v", err)
	}
	defer s.Close()

	t0 := time.Now().Truncate(time.Millisecond)
	_ = s.Upsert(ctx, "sprints", []Document{doc("1", t0, `{"sprint_key":"1:7"}`)})
	_ = s.Upsert(ctx, "sprints", []Document{doc("1", t0, `{"sprint_key":"1:7"}`)})
	_ = s.Insert(ctx, "other", []Document{doc("x", t0, `{}`)})

	docs, err := s.Find(ctx, "sprints", Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	if err := s.Clear(ctx, "sprints"); err != nil {
		t.Fatal(err)
	}
	docs, _ = s.Find(ctx, "sprints", Query{})
	if len(docs) != 0 {
		t.Errorf("expected empty collection after Clear, got %d", len(docs))
	}
	other, _ := s.Find(ctx, "other", Query{})
	if len(other) != 1 {
		t.Errorf("Clear must not touch other collections, got %d", len(other))
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "mongo"})
	if !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}

	_, err = Open(context.Background(), Config{Backend: BackendPostgres})
	if !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error for missing DSN, got %v", err)
	}
}
