package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/rickgao/lot-watch/internal/storage"
)

var keyLastQuery = []byte("last_query")

// SaveQuery stores the lot list filters as JSON.
func (s *Storage) SaveQuery(ctx context.Context, params map[string]string) error {
	if params == nil {
		params = map[string]string{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQuery)
		if bucket == nil {
			return fmt.Errorf("query bucket not found")
		}
		if err := bucket.Put(keyLastQuery, data); err != nil {
			return fmt.Errorf("save query: %w", err)
		}
		return nil
	})
}

// LastQuery returns the filters saved by SaveQuery, or storage.ErrNotFound.
func (s *Storage) LastQuery(ctx context.Context) (map[string]string, error) {
	var params map[string]string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQuery)
		if bucket == nil {
			return fmt.Errorf("query bucket not found")
		}

		data := bucket.Get(keyLastQuery)
		if data == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(data, &params); err != nil {
			return fmt.Errorf("unmarshal query: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return params, nil
}
