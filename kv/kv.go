// Package kv provides the physical key-value stores that preferences are
// persisted in, with support for multiple backends (in-memory, PostgreSQL,
// bbolt, Badger and a YAML file).
//
// The stores work with text keys and raw []byte values. They know nothing
// about encoding: keys and values arrive already transformed by the layer
// above. Every store applies a Batch atomically.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key is not found in the store.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("kv: store is closed")
)

// Store is a key-value store interface that works with raw bytes.
type Store interface {
	// Get retrieves a value by key. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Keys returns all keys matching the given prefix in ascending order.
	// If prefix is empty, returns all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Write applies every operation in the batch, in order, as one atomic unit.
	// Either all operations are visible afterwards or none are.
	Write(ctx context.Context, b *Batch) error

	// Close closes the store and releases any resources.
	Close() error
}

// OpKind identifies a batch operation.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpClear
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Op is a single staged mutation.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// Batch is an ordered list of mutations. The zero value is ready to use.
// A Batch is not safe for concurrent use.
type Batch struct {
	ops []Op
}

// Put stages a write of value under key. The value is copied.
func (b *Batch) Put(key string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	b.ops = append(b.ops, Op{Kind: OpPut, Key: key, Value: v})
}

// Delete stages the removal of key. Deleting a missing key is not an error.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Key: key})
}

// Clear stages the removal of every key in the store. Operations staged
// after Clear are applied on top of the emptied store.
func (b *Batch) Clear() {
	b.ops = append(b.ops, Op{Kind: OpClear})
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the staged operations in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Cleared reports whether the batch contains a Clear.
func (b *Batch) Cleared() bool {
	for _, op := range b.ops {
		if op.Kind == OpClear {
			return true
		}
	}
	return false
}

// TouchedKeys returns the distinct keys written or deleted by the batch,
// in first-touched order.
func (b *Batch) TouchedKeys() []string {
	seen := make(map[string]struct{}, len(b.ops))
	keys := make([]string, 0, len(b.ops))
	for _, op := range b.ops {
		if op.Kind == OpClear {
			continue
		}
		if _, ok := seen[op.Key]; ok {
			continue
		}
		seen[op.Key] = struct{}{}
		keys = append(keys, op.Key)
	}
	return keys
}
