package kv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// fileFormatVersion is written to every document so older readers can
// refuse files they don't understand.
const fileFormatVersion = 1

// FileStore keeps the whole map in memory and persists it as one YAML
// document. Every Write rewrites the file through a temp file and a rename,
// so the file on disk always holds a complete batch.
//
// It is safe for concurrent use within one process. Two processes writing
// the same file will overwrite each other.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	data   map[string][]byte
	closed bool
}

var _ Store = (*FileStore)(nil)

type fileDocument struct {
	Version int         `yaml:"version"`
	Entries []fileEntry `yaml:"entries"`
}

type fileEntry struct {
	Key      string `yaml:"key"`
	Value    string `yaml:"value"`
	Encoding string `yaml:"encoding,omitempty"`
}

// OpenFile loads the store at path. A missing file is an empty store; the
// file is created on the first Write.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: make(map[string][]byte),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Version > fileFormatVersion {
		return nil, fmt.Errorf("parsing %s: unsupported version %d", path, doc.Version)
	}

	for _, e := range doc.Entries {
		switch e.Encoding {
		case "":
			s.data[e.Key] = []byte(e.Value)
		case "base64":
			b, err := base64.StdEncoding.DecodeString(e.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: key %q: %w", path, e.Key, err)
			}
			s.data[e.Key] = b
		default:
			return nil, fmt.Errorf("parsing %s: key %q: unknown encoding %q", path, e.Key, e.Encoding)
		}
	}

	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *FileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Write applies the batch to a copy of the map, persists the copy and only
// then swaps it in. A failed write leaves both memory and disk unchanged.
func (s *FileStore) Write(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	next := maps.Clone(s.data)
	for _, op := range b.Ops() {
		switch op.Kind {
		case OpPut:
			next[op.Key] = op.Value
		case OpDelete:
			delete(next, op.Key)
		case OpClear:
			clear(next)
		}
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *FileStore) persist(data map[string][]byte) error {
	doc := fileDocument{Version: fileFormatVersion, Entries: make([]fileEntry, 0, len(data))}
	for _, k := range slices.Sorted(maps.Keys(data)) {
		v := data[k]
		if utf8.Valid(v) {
			doc.Entries = append(doc.Entries, fileEntry{Key: k, Value: string(v)})
			continue
		}
		doc.Entries = append(doc.Entries, fileEntry{
			Key:      k,
			Value:    base64.StdEncoding.EncodeToString(v),
			Encoding: "base64",
		})
	}

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Close releases the in-memory copy. The file stays on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.data = nil
	return nil
}
