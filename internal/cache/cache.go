package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"eng-metrics/internal/docstore"
	"eng-metrics/internal/errdefs"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TimeWindow stores records of type T behind a ModelSpec.
//
// The cache holds no locks: concurrent saves for the same unique key are
// resolved by the store (last write wins). Callers needing single-flight
// semantics coordinate on the same key they filter by.
type TimeWindow[T any] struct {
	store    docstore.Store
	spec     ModelSpec
	listener Listener
	now      func() time.Time
}

// Option customises a TimeWindow.
type Option func(*options)

type options struct {
	listener Listener
	now      func() time.Time
}

// WithListener sets the observability sink notified after every call.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listener = l
		}
	}
}

// WithClock overrides the time source used for storage times and TTL windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a TimeWindow for spec on top of store.
func New[T any](store docstore.Store, spec ModelSpec, opts ...Option) (*TimeWindow[T], error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("cache %s without a store: %w", spec.Name, errdefs.ErrConfiguration)
	}

	o := options{listener: nopListener{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &TimeWindow[T]{
		store:    store,
		spec:     spec,
		listener: o.listener,
		now:      o.now,
	}, nil
}

// Spec returns the model declaration of the cache.
func (c *TimeWindow[T]) Spec() ModelSpec {
	return c.spec
}

// Load returns the records matching f within the model's default TTL.
// An empty result means there is no usable cached data.
func (c *TimeWindow[T]) Load(ctx context.Context, f Filter) ([]Record[T], error) {
	return c.load(ctx, f, c.spec.TTL)
}

// LoadWithTTL is Load with an overriding freshness window. A non-positive ttl
// falls back to the model default.
func (c *TimeWindow[T]) LoadWithTTL(ctx context.Context, f Filter, ttl time.Duration) ([]Record[T], error) {
	if ttl <= 0 {
		ttl = c.spec.TTL
	}
	return c.load(ctx, f, ttl)
}

// Latest returns the newest record matching f, if any.
func (c *TimeWindow[T]) Latest(ctx context.Context, f Filter) (Record[T], bool, error) {
	f.Limit = 1
	records, err := c.Load(ctx, f)
	if err != nil || len(records) == 0 {
		return Record[T]{}, false, err
	}
	return records[0], true, nil
}

func (c *TimeWindow[T]) load(ctx context.Context, f Filter, ttl time.Duration) ([]Record[T], error) {
	if err := c.validateFilter(f); err != nil {
		return nil, err
	}

	q := docstore.Query{
		Fields:      f.Fields,
		StorageType: c.spec.StorageType,
		StoredSince: f.StoredSince,
		Limit:       f.Limit,
	}
	if q.StoredSince.IsZero() && ttl > 0 {
		q.StoredSince = c.now().Add(-ttl)
	}

	docs, err := c.store.Find(ctx, c.spec.Name, q)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.spec.Name, err)
	}

	records := make([]Record[T], 0, len(docs))
	for _, d := range docs {
		var data T
		if err := json.Unmarshal(d.Body, &data); err != nil {
			return nil, fmt.Errorf("decode %s record %s: %w", c.spec.Name, d.ID, err)
		}
		records = append(records, Record[T]{
			Data:        data,
			StorageTime: d.StorageTime,
			StorageType: d.StorageType,
			UniqueKey:   d.UniqueKey,
		})
	}

	log.Debug().Str("cache", c.spec.Name).Int("count", len(records)).Msg("Cache load")
	c.emit(OpLoad, len(records), describeQuery(q))
	return records, nil
}

// Save decorates data with storage metadata and writes it: keyed upsert when
// the model declares a unique key, a new batch otherwise. ClearBeforeAdd
// models are purged first.
func (c *TimeWindow[T]) Save(ctx context.Context, data []T) error {
	docs, err := c.decorate(data)
	if err != nil {
		return err
	}

	if c.spec.ClearBeforeAdd {
		if err := c.store.Clear(ctx, c.spec.Name); err != nil {
			return fmt.Errorf("clear %s: %w", c.spec.Name, err)
		}
	}

	mode := "insert"
	if c.spec.UniqueKey != "" {
		mode = "upsert:" + c.spec.UniqueKey
		err = c.store.Upsert(ctx, c.spec.Name, docs)
	} else {
		err = c.store.Insert(ctx, c.spec.Name, docs)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", c.spec.Name, err)
	}

	if c.spec.ClearBeforeAdd {
		mode = "clear+" + mode
	}
	c.emit(OpSave, len(docs), mode+keySummary(docs))
	return nil
}

// Update upserts data by unique key. Models without a unique key cannot be
// updated and fail before any I/O.
func (c *TimeWindow[T]) Update(ctx context.Context, data []T) error {
	if c.spec.UniqueKey == "" {
		return fmt.Errorf("update on %s requires a unique key: %w", c.spec.Name, errdefs.ErrConfiguration)
	}

	docs, err := c.decorate(data)
	if err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, c.spec.Name, docs); err != nil {
		return fmt.Errorf("update %s: %w", c.spec.Name, err)
	}

	c.emit(OpUpdate, len(docs), "upsert:"+c.spec.UniqueKey+keySummary(docs))
	return nil
}

func (c *TimeWindow[T]) validateFilter(f Filter) error {
	if err := docstore.ValidateFields(f.Fields); err != nil {
		return fmt.Errorf("load %s: %v: %w", c.spec.Name, err, errdefs.ErrConfiguration)
	}
	for _, field := range c.spec.RequiredFields {
		if _, ok := f.Fields[field]; !ok {
			return fmt.Errorf("load %s requires the %q filter field: %w", c.spec.Name, field, errdefs.ErrConfiguration)
		}
	}
	if f.Limit < 0 {
		return fmt.Errorf("load %s with negative limit: %w", c.spec.Name, errdefs.ErrConfiguration)
	}
	return nil
}

func (c *TimeWindow[T]) decorate(data []T) ([]docstore.Document, error) {
	now := c.now()
	docs := make([]docstore.Document, 0, len(data))

	for i, item := range data {
		body, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode %s record %d: %w", c.spec.Name, i, err)
		}

		d := docstore.Document{
			StorageTime: now,
			StorageType: c.spec.StorageType,
			Body:        body,
		}

		if c.spec.UniqueKey != "" {
			key, err := extractKey(body, c.spec.UniqueKey)
			if err != nil {
				return nil, fmt.Errorf("record %d of %s: %v: %w", i, c.spec.Name, err, errdefs.ErrConfiguration)
			}
			d.UniqueKey = key
			d.ID = docstore.UpsertID(c.spec.StorageType, key)
		} else {
			d.ID = uuid.NewString()
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (c *TimeWindow[T]) emit(op Op, count int, info string) {
	c.listener.CacheActivity(Event{
		Cache:    c.spec.Name,
		Op:       op,
		KeyCount: count,
		Info:     info,
		At:       c.now(),
	})
}

// extractKey reads the unique key field from an encoded payload.
func extractKey(body []byte, field string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", fmt.Errorf("payload is not an object: %v", err)
	}
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		return "", fmt.Errorf("missing unique key field %q", field)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty unique key field %q", field)
		}
		return s, nil
	}
	return string(raw), nil
}

func describeQuery(q docstore.Query) string {
	parts := make([]string, 0, len(q.Fields)+3)
	names := make([]string, 0, len(q.Fields))
	for name := range q.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, q.Fields[name]))
	}
	if q.StorageType != "" {
		parts = append(parts, "storage_type="+q.StorageType)
	}
	if !q.StoredSince.IsZero() {
		parts = append(parts, "storage_time>="+q.StoredSince.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", q.Limit))
	}
	return strings.Join(parts, " ")
}

func keySummary(docs []docstore.Document) string {
	if len(docs) == 0 || docs[0].UniqueKey == "" {
		return ""
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.UniqueKey)
	}
	return " keys=" + strings.Join(keys, ",")
}
