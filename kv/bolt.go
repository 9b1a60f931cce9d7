package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is the bbolt bucket used when none is given.
const DefaultBucket = "prefs"

// BoltStore implements Store using bbolt (embedded B+ tree).
// All keys live in a single bucket. A Batch is one read-write transaction.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

var _ Store = (*BoltStore)(nil)

// OpenBolt creates or opens a bbolt database at the given path.
// An empty bucket name selects DefaultBucket.
func OpenBolt(path, bucket string) (*BoltStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	s := &BoltStore{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return s, nil
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		val = make([]byte, len(v))
		copy(val, v)
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil, ErrClosed
	}
	return val, err
}

func (s *BoltStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil, ErrClosed
	}
	return keys, err
}

func (s *BoltStore) Write(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		for _, op := range b.Ops() {
			switch op.Kind {
			case OpPut:
				if err := bkt.Put([]byte(op.Key), op.Value); err != nil {
					return fmt.Errorf("put %q: %w", op.Key, err)
				}
			case OpDelete:
				if err := bkt.Delete([]byte(op.Key)); err != nil {
					return fmt.Errorf("delete %q: %w", op.Key, err)
				}
			case OpClear:
				if err := tx.DeleteBucket(s.bucket); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				var err error
				bkt, err = tx.CreateBucket(s.bucket)
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
			}
		}
		return nil
	})
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
