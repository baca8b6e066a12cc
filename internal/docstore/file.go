package docstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// FileStore persists each collection as a JSONL file under a cache directory.
// Collections are loaded lazily and rewritten atomically on every change.
type FileStore struct {
	dir string

	mu     sync.Mutex
	loaded map[string][]Document
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		loaded: make(map[string][]Document),
	}, nil
}

func (s *FileStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	s.mu.Lock()
	docs, err := s.collection(collection)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	candidates := make([]Document, len(docs))
	copy(candidates, docs)
	s.mu.Unlock()

	return filterDocs(candidates, q)
}

func (s *FileStore) Upsert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.collection(collection)
	if err != nil {
		return err
	}
	next := append([]Document(nil), existing...)
	return s.persist(collection, upsertDocs(next, docs))
}

func (s *FileStore) Insert(_ context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.collection(collection)
	if err != nil {
		return err
	}
	next := append(append([]Document(nil), existing...), docs...)
	return s.persist(collection, next)
}

func (s *FileStore) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.loaded, collection)
	if err := os.Remove(s.path(collection)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(collection string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(collection)
	return filepath.Join(s.dir, fmt.Sprintf("%s.jsonl", safe))
}

// collection returns the in-memory copy of a collection, reading it from disk on first use.
// Caller holds s.mu.
func (s *FileStore) collection(name string) ([]Document, error) {
	if docs, ok := s.loaded[name]; ok {
		return docs, nil
	}

	file, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded[name] = nil
			return nil, nil // No cache yet, not an error
		}
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer file.Close()

	var docs []Document
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var d Document
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("Skipping invalid JSON line in cache")
			continue
		}
		docs = append(docs, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading cache: %w", err)
	}

	log.Debug().Str("collection", name).Int("count", len(docs)).Msg("Loaded documents from cache")
	s.loaded[name] = docs
	return docs, nil
}

// persist writes docs to a temp file and renames it over the collection file.
// Caller holds s.mu.
func (s *FileStore) persist(name string, docs []Document) error {
	path := s.path(name)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, d := range docs {
		if err := encoder.Encode(d); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode document: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	s.loaded[name] = docs
	log.Debug().Str("collection", name).Int("count", len(docs)).Msg("Documents saved to cache")
	return nil
}
