package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens a Badger database in dir. An empty dir opens an
// in-memory database, which is handy for tests.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.db.IsClosed() {
		return nil, ErrClosed
	}

	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.db.IsClosed() {
		return nil, ErrClosed
	}

	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Write applies the batch in one transaction. A Clear deletes every key
// visible to the transaction, so large stores may exceed Badger's
// transaction size limit; that surfaces as badger.ErrTxnTooBig.
func (s *BadgerStore) Write(ctx context.Context, b *Batch) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.Ops() {
			switch op.Kind {
			case OpPut:
				if err := txn.Set([]byte(op.Key), op.Value); err != nil {
					return fmt.Errorf("put %q: %w", op.Key, err)
				}
			case OpDelete:
				if err := txn.Delete([]byte(op.Key)); err != nil {
					return fmt.Errorf("delete %q: %w", op.Key, err)
				}
			case OpClear:
				if err := clearTxn(txn); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
			}
		}
		return nil
	})
}

func clearTxn(txn *badger.Txn) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	var keys [][]byte
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.Close()
}
