package docstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefix for BadgerDB storage: doc/<collection>/<id>
const badgerKeyPrefix = "doc/"

// BadgerStore keeps documents in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at dir. An empty dir opens an
// in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func collectionPrefix(collection string) []byte {
	return []byte(badgerKeyPrefix + collection + "/")
}

func documentKey(collection, id string) []byte {
	return []byte(badgerKeyPrefix + collection + "/" + id)
}

func (s *BadgerStore) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	var candidates []Document

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := collectionPrefix(collection)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var d Document
				if err := json.Unmarshal(val, &d); err != nil {
					return fmt.Errorf("decode document: %w", err)
				}
				candidates = append(candidates, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}

	return filterDocs(candidates, q)
}

func (s *BadgerStore) Upsert(_ context.Context, collection string, docs []Document) error {
	return s.write(collection, docs)
}

func (s *BadgerStore) Insert(_ context.Context, collection string, docs []Document) error {
	return s.write(collection, docs)
}

func (s *BadgerStore) write(collection string, docs []Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, d := range docs {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("marshal document: %w", err)
			}
			if err := txn.Set(documentKey(collection, d.ID), data); err != nil {
				return fmt.Errorf("set document: %w", err)
			}
		}
		return nil
	})
}

func (s *BadgerStore) Clear(_ context.Context, collection string) error {
	if err := s.db.DropPrefix(collectionPrefix(collection)); err != nil {
		return fmt.Errorf("drop collection %s: %w", collection, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
