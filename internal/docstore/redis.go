package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

// Key prefix for namespacing
const redisKeyPrefix = "eng-metrics:docs:"

// RedisStore keeps each collection as a Redis hash of id -> document JSON.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds the connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedisStore connects to Redis and verifies the connection.
func OpenRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) key(collection string) string {
	return redisKeyPrefix + collection
}

func (s *RedisStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	values, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s from Redis: %w", collection, err)
	}

	candidates := make([]Document, 0, len(values))
	for id, raw := range values {
		var d Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
		}
		candidates = append(candidates, d)
	}
	return filterDocs(candidates, q)
}

func (s *RedisStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	return s.write(ctx, collection, docs)
}

func (s *RedisStore) Insert(ctx context.Context, collection string, docs []Document) error {
	return s.write(ctx, collection, docs)
}

func (s *RedisStore) write(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(docs))
	for _, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		values[d.ID] = data
	}
	if err := s.client.HSet(ctx, s.key(collection), values).Err(); err != nil {
		return fmt.Errorf("failed to write collection %s to Redis: %w", collection, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.key(collection)).Err(); err != nil {
		return fmt.Errorf("failed to clear collection %s in Redis: %w", collection, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
