package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/erlorenz/go-prefs/kv"
)

func tempBolt(t *testing.T) *kv.BoltStore {
	t.Helper()
	s, err := kv.OpenBolt(filepath.Join(t.TempDir(), "test.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore(t *testing.T) {
	testStore(t, func(t *testing.T) kv.Store {
		return tempBolt(t)
	})
}

func TestBoltOpenInvalidPath(t *testing.T) {
	_, err := kv.OpenBolt("/nonexistent/dir/test.db", "")
	if err == nil {
		t.Fatal("opening db in nonexistent dir should fail")
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := kv.OpenBolt(path, "settings")
	if err != nil {
		t.Fatal(err)
	}
	var b kv.Batch
	b.Put("key1", []byte("val1"))
	if err := s.Write(ctx, &b); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}

	s, err = kv.OpenBolt(path, "settings")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	val, err := s.Get(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "val1" {
		t.Fatalf("expected val1, got %q", val)
	}
}
