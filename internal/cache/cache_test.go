package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"eng-metrics/internal/docstore"
	"eng-metrics/internal/errdefs"
)

type summary struct {
	QueryKey string `json:"query_key"`
	Team     string `json:"team,omitempty"`
	Points   int    `json:"points"`
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct{ events []Event }

func (r *recorder) CacheActivity(e Event) { r.events = append(r.events, e) }

func newTestCache(t *testing.T, spec ModelSpec) (*TimeWindow[summary], *docstore.MemoryStore, *fakeClock, *recorder) {
	t.Helper()
	store := docstore.NewMemoryStore()
	clock := &fakeClock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	c, err := New[summary](store, spec, WithClock(clock.Now), WithListener(rec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, store, clock, rec
}

func TestTimeWindow_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, _, clock, _ := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key"})

	// Stored three hours ago
	clock.Advance(-3 * time.Hour)
	if err := c.Save(ctx, []summary{{QueryKey: "q1", Points: 5}}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * time.Hour)

	f := Filter{Fields: map[string]any{"query_key": "q1"}}
	got, err := c.LoadWithTTL(ctx, f, 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected stale record to be filtered out, got %d", len(got))
	}

	if err := c.Save(ctx, []summary{{QueryKey: "q1", Points: 8}}); err != nil {
		t.Fatal(err)
	}
	got, _ = c.LoadWithTTL(ctx, f, 2*time.Hour)
	if len(got) != 1 {
		t.Fatalf("expected exactly one fresh record, got %d", len(got))
	}
	if got[0].Data.Points != 8 {
		t.Errorf("expected refreshed payload, got %+v", got[0].Data)
	}
	if !got[0].StorageTime.Equal(clock.Now()) {
		t.Errorf("expected storage time %v, got %v", clock.Now(), got[0].StorageTime)
	}
}

func TestTimeWindow_ExplicitStorageTimeWinsOverTTL(t *testing.T) {
	ctx := context.Background()
	c, _, clock, _ := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key", TTL: time.Hour})

	stored := clock.Now().Add(-5 * time.Hour)
	clock.t = stored
	_ = c.Save(ctx, []summary{{QueryKey: "q1"}})
	clock.Advance(5 * time.Hour)

	got, _ := c.Load(ctx, Filter{Fields: map[string]any{"query_key": "q1"}})
	if len(got) != 0 {
		t.Errorf("expected default ttl to hide the record, got %d", len(got))
	}

	got, _ = c.Load(ctx, Filter{Fields: map[string]any{"query_key": "q1"}, StoredSince: stored})
	if len(got) != 1 {
		t.Errorf("expected explicit storage_time constraint to bypass ttl, got %d", len(got))
	}
}

func TestTimeWindow_SaveIsIdempotentByUniqueKey(t *testing.T) {
	ctx := context.Background()
	c, store, _, _ := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key"})

	data := []summary{{QueryKey: "q1", Points: 3}}
	_ = c.Save(ctx, data)
	_ = c.Save(ctx, data)

	if n := store.Count("points"); n != 1 {
		t.Errorf("expected exactly one record for key q1, got %d", n)
	}
}

func TestTimeWindow_InsertWithoutUniqueKeyAppends(t *testing.T) {
	ctx := context.Background()
	c, store, _, _ := newTestCache(t, ModelSpec{Name: "history"})

	_ = c.Save(ctx, []summary{{QueryKey: "a"}, {QueryKey: "b"}})
	_ = c.Save(ctx, []summary{{QueryKey: "a"}})

	if n := store.Count("history"); n != 3 {
		t.Errorf("expected 3 appended records, got %d", n)
	}
}

func TestTimeWindow_ClearBeforeAdd(t *testing.T) {
	ctx := context.Background()
	c, store, _, _ := newTestCache(t, ModelSpec{Name: "dashboard", ClearBeforeAdd: true})

	_ = c.Save(ctx, []summary{{QueryKey: "a"}, {QueryKey: "b"}})
	_ = c.Save(ctx, []summary{{QueryKey: "c"}})

	if n := store.Count("dashboard"); n != 1 {
		t.Fatalf("expected only the latest snapshot, got %d records", n)
	}
	got, _ := c.Load(ctx, Filter{})
	if len(got) != 1 || got[0].Data.QueryKey != "c" {
		t.Errorf("expected snapshot c, got %+v", got)
	}
}

func TestTimeWindow_UpdateRequiresUniqueKey(t *testing.T) {
	c, store, _, rec := newTestCache(t, ModelSpec{Name: "history"})

	err := c.Update(context.Background(), []summary{{QueryKey: "a"}})
	if !errdefs.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if store.Count("history") != 0 {
		t.Error("update must fail before any write")
	}
	if len(rec.events) != 0 {
		t.Error("failed update must not emit an event")
	}
}

func TestTimeWindow_UpdateUpserts(t *testing.T) {
	ctx := context.Background()
	c, store, _, rec := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key"})

	_ = c.Update(ctx, []summary{{QueryKey: "a", Points: 1}})
	_ = c.Update(ctx, []summary{{QueryKey: "a", Points: 2}})

	if store.Count("points") != 1 {
		t.Errorf("expected one record, got %d", store.Count("points"))
	}
	if len(rec.events) != 2 || rec.events[1].Op != OpUpdate {
		t.Errorf("expected two update events, got %+v", rec.events)
	}
}

func TestTimeWindow_MissingUniqueKeyValue(t *testing.T) {
	c, _, _, _ := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key"})

	err := c.Save(context.Background(), []summary{{Points: 1}})
	if !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error for empty key, got %v", err)
	}
}

func TestTimeWindow_RequiredFields(t *testing.T) {
	c, _, _, rec := newTestCache(t, ModelSpec{Name: "team_points", UniqueKey: "query_key", RequiredFields: []string{"team"}})

	_, err := c.Load(context.Background(), Filter{Fields: map[string]any{"query_key": "x"}})
	if !errdefs.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Error("rejected load must not emit an event")
	}

	_, err = c.Load(context.Background(), Filter{Fields: map[string]any{"team": "core"}})
	if err != nil {
		t.Errorf("expected scoped load to succeed, got %v", err)
	}
}

func TestTimeWindow_MalformedFilter(t *testing.T) {
	c, _, _, _ := newTestCache(t, ModelSpec{Name: "points"})

	_, err := c.Load(context.Background(), Filter{Fields: map[string]any{"keys": []string{"a"}}})
	if !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error for non-scalar filter, got %v", err)
	}
}

func TestTimeWindow_EmitsOneEventPerCall(t *testing.T) {
	ctx := context.Background()
	c, _, _, rec := newTestCache(t, ModelSpec{Name: "points", UniqueKey: "query_key"})

	_, _ = c.Load(ctx, Filter{})
	if len(rec.events) != 1 {
		t.Fatalf("expected one event for an empty load, got %d", len(rec.events))
	}
	if rec.events[0].KeyCount != 0 || rec.events[0].Op != OpLoad || rec.events[0].Cache != "points" {
		t.Errorf("unexpected empty-load event: %+v", rec.events[0])
	}

	_ = c.Save(ctx, []summary{{QueryKey: "a"}, {QueryKey: "b"}})
	if len(rec.events) != 2 || rec.events[1].KeyCount != 2 || rec.events[1].Op != OpSave {
		t.Errorf("unexpected save event: %+v", rec.events)
	}
}

func TestTimeWindow_StorageTypeDiscriminator(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	points, _ := New[summary](store, ModelSpec{Name: "analysis", StorageType: "points", UniqueKey: "query_key"})
	timing, _ := New[summary](store, ModelSpec{Name: "analysis", StorageType: "timing", UniqueKey: "query_key"})

	_ = points.Save(ctx, []summary{{QueryKey: "q"}})
	_ = timing.Save(ctx, []summary{{QueryKey: "q"}})

	if store.Count("analysis") != 2 {
		t.Errorf("expected same key under two storage types to be distinct, got %d", store.Count("analysis"))
	}
	got, _ := points.Load(ctx, Filter{})
	if len(got) != 1 || got[0].StorageType != "points" {
		t.Errorf("expected only the points record, got %+v", got)
	}
}

type failingStore struct{ docstore.MemoryStore }

var errBackend = errors.New("connection refused")

func (*failingStore) Find(context.Context, string, docstore.Query) ([]docstore.Document, error) {
	return nil, errBackend
}

func TestTimeWindow_StoreErrorsPropagate(t *testing.T) {
	c, err := New[summary](&failingStore{}, ModelSpec{Name: "points"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Load(context.Background(), Filter{})
	if !errors.Is(err, errBackend) {
		t.Errorf("expected backend error to propagate, got %v", err)
	}
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	if _, err := New[summary](docstore.NewMemoryStore(), ModelSpec{}); !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error for unnamed model, got %v", err)
	}
}
