package prefs

import (
	"fmt"
	"log/slog"
	"maps"
)

// Converter transforms text in one direction. It is used for keys and for
// per-type value transforms.
type Converter func(s string) (string, error)

// ValueConverter transforms value text and receives the value's type.
type ValueConverter func(t Type, s string) (string, error)

// ValueCodec is an encode/decode pair for one value type.
type ValueCodec struct {
	Encode Converter
	Decode Converter
}

// Codec is a reversible transform. Everything in package codec satisfies it.
type Codec interface {
	Encode(s string) (string, error)
	Decode(s string) (string, error)
}

// Config holds the transforms applied by Preferences.
//
// Keys always go through KeyEncoder/KeyDecoder. The key encoder must be
// deterministic or lookups will miss.
//
// Values are resolved per type: a Types entry wins for its type, otherwise
// the unified ValueEncoder/ValueDecoder pair is used, otherwise the value is
// stored as is.
type Config struct {
	KeyEncoder Converter
	KeyDecoder Converter

	ValueEncoder ValueConverter
	ValueDecoder ValueConverter

	Types map[Type]ValueCodec

	// Logger receives change-listener diagnostics. Defaults to the package logger.
	Logger *slog.Logger
}

// FromCodec uses c for keys and for every value type.
func FromCodec(c Codec) Config {
	return FromCodecs(c, c)
}

// FromCodecs uses keys for keys and values for every value type. Use it to
// pair a deterministic key cipher with a randomized value cipher.
func FromCodecs(keys, values Codec) Config {
	return Config{
		KeyEncoder:   keys.Encode,
		KeyDecoder:   keys.Decode,
		ValueEncoder: func(_ Type, s string) (string, error) { return values.Encode(s) },
		ValueDecoder: func(_ Type, s string) (string, error) { return values.Decode(s) },
	}
}

func (c Config) validate() error {
	if c.KeyEncoder == nil || c.KeyDecoder == nil {
		return ErrMissingKeyCodec
	}
	if (c.ValueEncoder == nil) != (c.ValueDecoder == nil) {
		return ErrIncompleteCodec
	}
	for t, vc := range c.Types {
		if !t.valid() {
			return fmt.Errorf("prefs: codec for unknown %s", t)
		}
		if (vc.Encode == nil) != (vc.Decode == nil) {
			return fmt.Errorf("%w: %s", ErrIncompleteCodec, t)
		}
	}
	return nil
}

// clone copies the Types map so later changes by the caller are not seen.
func (c Config) clone() Config {
	c.Types = maps.Clone(c.Types)
	return c
}

func (c Config) encodeValue(t Type, s string) (string, error) {
	if vc, ok := c.Types[t]; ok && vc.Encode != nil {
		return vc.Encode(s)
	}
	if c.ValueEncoder != nil {
		return c.ValueEncoder(t, s)
	}
	return s, nil
}

func (c Config) decodeValue(t Type, s string) (string, error) {
	if vc, ok := c.Types[t]; ok && vc.Decode != nil {
		return vc.Decode(s)
	}
	if c.ValueDecoder != nil {
		return c.ValueDecoder(t, s)
	}
	return s, nil
}
