package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cache_documents (
    collection   TEXT        NOT NULL,
    id           TEXT        NOT NULL,
    storage_type TEXT        NOT NULL DEFAULT '',
    unique_key   TEXT        NOT NULL DEFAULT '',
    storage_time TIMESTAMPTZ NOT NULL,
    body         JSONB       NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS cache_documents_time_idx
    ON cache_documents (collection, storage_time DESC);`

// PostgresStore keeps documents in a single JSONB table. Field filters are
// pushed down as JSONB containment.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects to dsn and ensures the schema exists.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter, err := q.containment()
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	var since *time.Time
	if !q.StoredSince.IsZero() {
		since = &q.StoredSince
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	const query = `
        SELECT id, storage_type, unique_key, storage_time, body
        FROM cache_documents
        WHERE collection = $1
          AND ($2 = '' OR storage_type = $2)
          AND ($3::timestamptz IS NULL OR storage_time >= $3)
          AND body @> $4::jsonb
        ORDER BY storage_time DESC, id ASC
        LIMIT $5`

	rows, err := s.pool.Query(ctx, query, collection, q.StorageType, since, string(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var body []byte
		if err := rows.Scan(&d.ID, &d.StorageType, &d.UniqueKey, &d.StorageTime, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Body = json.RawMessage(body)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", collection, err)
	}
	return docs, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	const q = `
        INSERT INTO cache_documents(collection, id, storage_type, unique_key, storage_time, body)
        VALUES($1,$2,$3,$4,$5,$6::jsonb)
        ON CONFLICT (collection, id) DO UPDATE SET
            storage_type=EXCLUDED.storage_type,
            unique_key=EXCLUDED.unique_key,
            storage_time=EXCLUDED.storage_time,
            body=EXCLUDED.body`
	return s.sendBatch(ctx, q, collection, docs)
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, docs []Document) error {
	const q = `
        INSERT INTO cache_documents(collection, id, storage_type, unique_key, storage_time, body)
        VALUES($1,$2,$3,$4,$5,$6::jsonb)`
	return s.sendBatch(ctx, q, collection, docs)
}

func (s *PostgresStore) sendBatch(ctx context.Context, q, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(q, collection, d.ID, d.StorageType, d.UniqueKey, d.StorageTime, string(d.Body))
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("write collection %s: %w", collection, err)
		}
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, collection string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_documents WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("clear collection %s: %w", collection, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
