package prefs

import "context"

// Editor stages changes for one batch. Values are encoded when they are put,
// so encoding errors surface immediately. An Editor is single-use: after
// Commit or Apply every method returns ErrEditorClosed. It is not safe for
// concurrent use.
type Editor struct {
	p      *Preferences
	be     BackendEditor
	closed bool
}

// Put stages v under key as type t. v must be of t's Go type. A nil string
// set stages the removal of key; an empty one is stored as an empty set.
func (e *Editor) Put(key string, t Type, v any) error {
	if e.closed {
		return ErrEditorClosed
	}
	if t == TypeStringSet {
		if set, ok := v.([]string); v == nil || (ok && set == nil) {
			return e.Remove(key)
		}
	}
	k, err := e.p.encodeKey(key)
	if err != nil {
		return err
	}
	val, err := e.p.encode(key, t, v)
	if err != nil {
		return err
	}
	e.be.Put(k, val)
	return nil
}

// Typed shorthands for Put. PutStringSet with a nil set removes key.

func (e *Editor) PutString(key, v string) error             { return e.Put(key, TypeString, v) }
func (e *Editor) PutInt(key string, v int) error            { return e.Put(key, TypeInt, v) }
func (e *Editor) PutInt64(key string, v int64) error        { return e.Put(key, TypeInt64, v) }
func (e *Editor) PutFloat(key string, v float32) error      { return e.Put(key, TypeFloat, v) }
func (e *Editor) PutBool(key string, v bool) error          { return e.Put(key, TypeBool, v) }
func (e *Editor) PutStringSet(key string, v []string) error { return e.Put(key, TypeStringSet, v) }

// Remove stages the deletion of key.
func (e *Editor) Remove(key string) error {
	if e.closed {
		return ErrEditorClosed
	}
	k, err := e.p.encodeKey(key)
	if err != nil {
		return err
	}
	e.be.Remove(k)
	return nil
}

// Clear stages the removal of every entry. The clear runs before the other
// changes in this editor regardless of call order, so
//
//	ed.PutString("a", "1")
//	ed.Clear()
//
// leaves only "a".
func (e *Editor) Clear() error {
	if e.closed {
		return ErrEditorClosed
	}
	e.be.Clear()
	return nil
}

// Commit writes the batch and waits for it. Backend failures are returned as
// *StoreError.
func (e *Editor) Commit(ctx context.Context) error {
	if e.closed {
		return ErrEditorClosed
	}
	e.closed = true
	if err := e.be.Commit(ctx); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	return nil
}

// Apply writes the batch in the background and returns at once. It is a
// no-op on a closed editor.
func (e *Editor) Apply() {
	if e.closed {
		return
	}
	e.closed = true
	e.be.Apply()
}
