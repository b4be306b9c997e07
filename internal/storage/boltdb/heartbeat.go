package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/rickgao/lot-watch/internal/storage"
)

var keyLastHeartbeat = []byte("last_heartbeat")

// SaveHeartbeat stores t as unix nanoseconds.
func (s *Storage) SaveHeartbeat(ctx context.Context, t time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketHeartbeat)
		if bucket == nil {
			return fmt.Errorf("heartbeat bucket not found")
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))

		if err := bucket.Put(keyLastHeartbeat, buf); err != nil {
			return fmt.Errorf("save heartbeat: %w", err)
		}
		return nil
	})
}

func (s *Storage) LastHeartbeat(ctx context.Context) (time.Time, error) {
	var t time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketHeartbeat)
		if bucket == nil {
			return fmt.Errorf("heartbeat bucket not found")
		}

		buf := bucket.Get(keyLastHeartbeat)
		if buf == nil {
			return storage.ErrNotFound
		}
		if len(buf) != 8 {
			return fmt.Errorf("corrupt heartbeat value: %d bytes", len(buf))
		}

		t = time.Unix(0, int64(binary.BigEndian.Uint64(buf)))
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return t, nil
}

func (s *Storage) ClearHeartbeat(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketHeartbeat)
		if bucket == nil {
			return fmt.Errorf("heartbeat bucket not found")
		}
		return bucket.Delete(keyLastHeartbeat)
	})
}
