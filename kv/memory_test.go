package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/erlorenz/go-prefs/kv"
)

func TestMemoryStore(t *testing.T) {
	testStore(t, func(t *testing.T) kv.Store {
		s := kv.NewMemoryStore()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrClosed) {
		t.Errorf("Get after Close returned %v, want ErrClosed", err)
	}
	if err := store.Write(ctx, &kv.Batch{}); !errors.Is(err, kv.ErrClosed) {
		t.Errorf("Write after Close returned %v, want ErrClosed", err)
	}
	if err := store.Close(); !errors.Is(err, kv.ErrClosed) {
		t.Errorf("double Close returned %v, want ErrClosed", err)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b kv.Batch
	b.Put("k", []byte("v"))
	if err := store.Write(ctx, &b); !errors.Is(err, context.Canceled) {
		t.Errorf("Write with canceled context returned %v, want context.Canceled", err)
	}
	if _, err := store.Get(context.Background(), "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("canceled batch should not be applied, got %v", err)
	}
}
