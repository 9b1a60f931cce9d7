// Package prefs wraps a key-value store with reversible transforms for keys
// and values, so callers read and write plain data while the store only
// ever sees the encoded form.
//
// A Preferences value owns no persisted state. The same Backend may be read
// through several Preferences with different transforms, and reopening a
// persistent backend with the same transforms yields the same data.
//
//	backend := prefs.NewKVBackend(kv.NewMemoryStore())
//	p, err := prefs.New(backend, prefs.FromCodec(codec.Base64))
//	...
//	ed := p.Edit()
//	ed.PutString("key1", "hoge")
//	ed.PutInt("key2", 68)
//	err = ed.Commit(ctx)
//
// Preferences adds no locking of its own; concurrency guarantees are those
// of the Backend. Transforms must be safe for concurrent use.
package prefs

import (
	"context"
	"log/slog"

	"github.com/erlorenz/go-prefs/internal/logging"
)

var logger = logging.For("prefs")

// Preferences is the encoding facade over a Backend.
type Preferences struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
}

// New wraps b with the transforms in cfg. The backend is borrowed: closing
// it remains the caller's job. cfg is validated structurally only; no
// round trip is attempted.
func New(b Backend, cfg Config) (*Preferences, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := cfg.Logger
	if l == nil {
		l = logger
	}
	return &Preferences{backend: b, cfg: cfg.clone(), logger: l}, nil
}

func (p *Preferences) encodeKey(key string) (string, error) {
	k, err := p.cfg.KeyEncoder(key)
	if err != nil {
		return "", &EncodeError{Key: key, Err: err}
	}
	return k, nil
}

// lookup returns the raw stored value for a logical key.
func (p *Preferences) lookup(ctx context.Context, key string) (string, bool, error) {
	k, err := p.encodeKey(key)
	if err != nil {
		return "", false, err
	}
	raw, ok, err := p.backend.Get(ctx, k)
	if err != nil {
		return "", false, &StoreError{Op: "get", Err: err}
	}
	return raw, ok, nil
}

// decode turns a raw stored value into the Go value for t.
func (p *Preferences) decode(key string, t Type, raw string) (any, error) {
	if t == TypeStringSet {
		elems, err := unpackSet(raw)
		if err != nil {
			return nil, &DecodeError{Key: key, Type: t, Err: err}
		}
		out := make([]string, len(elems))
		for i, e := range elems {
			if out[i], err = p.cfg.decodeValue(t, e); err != nil {
				return nil, &DecodeError{Key: key, Type: t, Err: err}
			}
		}
		return normalizeSet(out), nil
	}

	text, err := p.cfg.decodeValue(t, raw)
	if err != nil {
		return nil, &DecodeError{Key: key, Type: t, Err: err}
	}
	v, err := t.parse(text)
	if err != nil {
		return nil, &DecodeError{Key: key, Type: t, Err: err}
	}
	return v, nil
}

// encode turns a Go value into the text handed to the backend.
func (p *Preferences) encode(key string, t Type, v any) (string, error) {
	if !t.valid() {
		return "", &EncodeError{Key: key, Type: t, Err: mismatch(t, v)}
	}

	if t == TypeStringSet {
		set, ok := v.([]string)
		if !ok {
			return "", &EncodeError{Key: key, Type: t, Err: mismatch(t, v)}
		}
		set = normalizeSet(set)
		for i, e := range set {
			enc, err := p.cfg.encodeValue(t, e)
			if err != nil {
				return "", &EncodeError{Key: key, Type: t, Err: err}
			}
			set[i] = enc
		}
		packed, err := packSet(set)
		if err != nil {
			return "", &EncodeError{Key: key, Type: t, Err: err}
		}
		return packed, nil
	}

	text, err := t.format(v)
	if err != nil {
		return "", &EncodeError{Key: key, Type: t, Err: err}
	}
	enc, err := p.cfg.encodeValue(t, text)
	if err != nil {
		return "", &EncodeError{Key: key, Type: t, Err: err}
	}
	return enc, nil
}

// Get returns the value stored under key as type t, or def when the key is
// absent. def must be nil or of t's Go type (string, int, int64, float32,
// bool or []string). An entry that exists but cannot be decoded yields a
// *DecodeError, never def.
func (p *Preferences) Get(ctx context.Context, key string, t Type, def any) (any, error) {
	if !t.valid() || (def != nil && !t.accepts(def)) {
		return nil, mismatch(t, def)
	}
	raw, ok, err := p.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return p.decode(key, t, raw)
}

func get[T any](ctx context.Context, p *Preferences, key string, t Type, def T) (T, error) {
	var zero T
	raw, ok, err := p.lookup(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return def, nil
	}
	v, err := p.decode(key, t, raw)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// GetString returns the string stored under key, or def if absent.
func (p *Preferences) GetString(ctx context.Context, key, def string) (string, error) {
	return get(ctx, p, key, TypeString, def)
}

// GetInt returns the int32-range integer stored under key, or def if absent.
func (p *Preferences) GetInt(ctx context.Context, key string, def int) (int, error) {
	return get(ctx, p, key, TypeInt, def)
}

// GetInt64 returns the 64-bit integer stored under key, or def if absent.
func (p *Preferences) GetInt64(ctx context.Context, key string, def int64) (int64, error) {
	return get(ctx, p, key, TypeInt64, def)
}

// GetFloat returns the float stored under key, or def if absent.
func (p *Preferences) GetFloat(ctx context.Context, key string, def float32) (float32, error) {
	return get(ctx, p, key, TypeFloat, def)
}

// GetBool returns the boolean stored under key, or def if absent.
func (p *Preferences) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	return get(ctx, p, key, TypeBool, def)
}

// GetStringSet returns the set stored under key, sorted, or def if absent.
func (p *Preferences) GetStringSet(ctx context.Context, key string, def []string) ([]string, error) {
	return get(ctx, p, key, TypeStringSet, def)
}

// Contains reports whether an entry exists for key.
func (p *Preferences) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.lookup(ctx, key)
	return ok, err
}

// All returns every entry with its key and value decoded. The store keeps
// no type tags, so each value is tried against the value types, those with
// a per-type codec first, then TypeString, then the rest. It comes back as
// the text of the first type that decodes and parses it.
// String sets come back as a JSON array of their decoded elements. A value
// no type accepts fails with a DecodeError for TypeString.
func (p *Preferences) All(ctx context.Context) (map[string]string, error) {
	raw, err := p.backend.All(ctx)
	if err != nil {
		return nil, &StoreError{Op: "all", Err: err}
	}

	order := p.allTypes()
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key, err := p.cfg.KeyDecoder(k)
		if err != nil {
			return nil, &DecodeError{Key: k, Err: err}
		}
		val, err := p.decodeAny(key, v, order)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

// allTypes is the order All tries types in. Types with a codec of their own
// go first since their decoders reject values they did not encode. String
// comes next, so without per-type codecs every scalar reads as its text.
func (p *Preferences) allTypes() []Type {
	order := make([]Type, 0, len(Types()))
	var rest []Type
	for _, t := range Types() {
		if t == TypeString {
			continue
		}
		if vc, ok := p.cfg.Types[t]; ok && vc.Decode != nil {
			order = append(order, t)
		} else {
			rest = append(rest, t)
		}
	}
	order = append(order, TypeString)
	return append(order, rest...)
}

func (p *Preferences) decodeAny(key, raw string, order []Type) (string, error) {
	var first error
	for _, t := range order {
		text, err := p.decodeText(key, t, raw)
		if err == nil {
			return text, nil
		}
		if t == TypeString {
			first = err
		}
	}
	return "", &DecodeError{Key: key, Type: TypeString, Err: first}
}

// decodeText decodes raw as t and returns its text without reformatting.
func (p *Preferences) decodeText(key string, t Type, raw string) (string, error) {
	if t == TypeStringSet {
		set, err := p.decode(key, t, raw)
		if err != nil {
			return "", err
		}
		return packSet(set.([]string))
	}
	text, err := p.cfg.decodeValue(t, raw)
	if err != nil {
		return "", err
	}
	if _, err := t.parse(text); err != nil {
		return "", err
	}
	return text, nil
}

// Edit starts a batch of changes. Nothing is visible to readers until the
// editor is committed or applied.
func (p *Preferences) Edit() *Editor {
	return &Editor{p: p, be: p.backend.Edit()}
}

// OnChange calls fn with the logical key of every entry changed by a
// committed batch, until ctx is done. A clear, or a batch whose keys are not
// known, is reported once with cleared set and an empty key; every other
// call has cleared unset, the empty logical key included. Keys that cannot
// be decoded are logged and skipped.
//
// The backend must implement Notifier.
func (p *Preferences) OnChange(ctx context.Context, fn func(key string, cleared bool)) error {
	n, ok := p.backend.(Notifier)
	if !ok {
		return ErrWatchUnsupported
	}
	return n.Watch(ctx, func(keys []string, cleared bool) {
		if cleared {
			fn("", true)
		}
		for _, k := range keys {
			key, err := p.cfg.KeyDecoder(k)
			if err != nil {
				p.logger.Warn("skipping undecodable key in change", "error", err)
				continue
			}
			fn(key, false)
		}
	})
}
