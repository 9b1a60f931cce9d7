package prefs

import (
	"errors"
	"fmt"
)

var (
	// ErrEditorClosed is returned by every Editor method after Commit or Apply.
	ErrEditorClosed = errors.New("prefs: editor already committed")

	// ErrMissingKeyCodec is returned by New when the key encoder or decoder is nil.
	ErrMissingKeyCodec = errors.New("prefs: key encoder and decoder are required")

	// ErrIncompleteCodec is returned by New when only one half of a value
	// transform pair is set.
	ErrIncompleteCodec = errors.New("prefs: value encoder and decoder must be set together")

	// ErrWatchUnsupported is returned by OnChange when the backend cannot
	// report changes.
	ErrWatchUnsupported = errors.New("prefs: backend does not support change notification")

	// ErrTypeMismatch is returned when a Go value does not match its Type tag.
	ErrTypeMismatch = errors.New("prefs: value does not match type")
)

// DecodeError reports a stored entry that is present but cannot be turned
// back into a value: the decoder rejected it or the decoded text does not
// parse as the requested type. Reads never fall back to the default for
// such entries.
type DecodeError struct {
	Key  string
	Type Type // 0 when the key itself could not be decoded
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("prefs: decoding %s %q: %v", e.Type, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a transform that rejected its input.
type EncodeError struct {
	Key  string
	Type Type // 0 when the key transform failed
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("prefs: encoding %s %q: %v", e.Type, e.Key, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// StoreError wraps a failure of the underlying backend. The cause is passed
// through unchanged and never retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "prefs: store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }
