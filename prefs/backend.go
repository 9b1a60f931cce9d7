package prefs

import "context"

// Backend is the underlying store the facade wraps. It sees only physical
// (already transformed) keys and values.
type Backend interface {
	// Get returns the stored value and whether it exists.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// All returns every stored entry.
	All(ctx context.Context) (map[string]string, error)

	// Edit starts a batch of mutations.
	Edit() BackendEditor
}

// BackendEditor stages mutations and writes them as one batch.
// A staged Clear takes effect before every Put and Remove of the same batch.
type BackendEditor interface {
	Put(key, value string)
	Remove(key string)
	Clear()

	// Commit writes the batch and waits for the result.
	Commit(ctx context.Context) error

	// Apply writes the batch in the background. Failures are not reported
	// to the caller.
	Apply()
}

// Notifier is implemented by backends that report committed changes.
type Notifier interface {
	// Watch calls fn with the physical keys of each committed batch until
	// ctx is done. cleared is set when the batch removed every key or when
	// the key list was not available; fn must then assume any key changed.
	Watch(ctx context.Context, fn func(keys []string, cleared bool)) error
}
