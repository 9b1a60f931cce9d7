// Package codec provides reversible text transforms for preference keys and
// values: plain encodings (Base64, Hex), authenticated encryption (AES-GCM,
// XChaCha20-Poly1305) and composition via Chain.
//
// Every codec is safe for concurrent use and immutable once built.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// ErrInvalid is returned by Decode when the input was not produced by the codec.
var ErrInvalid = errors.New("codec: invalid input")

// Codec is a reversible text transform. Decode(Encode(s)) must return s.
type Codec interface {
	Encode(s string) (string, error)
	Decode(s string) (string, error)
}

type identity struct{}

func (identity) Encode(s string) (string, error) { return s, nil }
func (identity) Decode(s string) (string, error) { return s, nil }

// Identity passes text through unchanged.
var Identity Codec = identity{}

type textEncoding struct {
	name string
	enc  func([]byte) string
	dec  func(string) ([]byte, error)
}

func (t textEncoding) Encode(s string) (string, error) {
	return t.enc([]byte(s)), nil
}

func (t textEncoding) Decode(s string) (string, error) {
	b, err := t.dec(s)
	if err != nil {
		return "", errors.Join(ErrInvalid, err)
	}
	return string(b), nil
}

func (t textEncoding) String() string { return t.name }

var (
	// Base64 is standard padded base64 without line breaks.
	Base64 Codec = textEncoding{"base64", base64.StdEncoding.EncodeToString, base64.StdEncoding.DecodeString}
	// Base64URL is unpadded URL-safe base64.
	Base64URL Codec = textEncoding{"base64url", base64.RawURLEncoding.EncodeToString, base64.RawURLEncoding.DecodeString}
	// Hex is lowercase hexadecimal.
	Hex Codec = textEncoding{"hex", hex.EncodeToString, hex.DecodeString}
)

type chain []Codec

// Chain composes codecs. Encode runs them in order and Decode in reverse,
// so Chain(AES, Base64URL) encrypts first and then re-encodes the result.
func Chain(codecs ...Codec) Codec {
	return chain(codecs)
}

func (c chain) Encode(s string) (string, error) {
	var err error
	for _, cd := range c {
		if s, err = cd.Encode(s); err != nil {
			return "", err
		}
	}
	return s, nil
}

func (c chain) Decode(s string) (string, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if s, err = c[i].Decode(s); err != nil {
			return "", err
		}
	}
	return s, nil
}
