package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the key length in bytes for both AEAD codecs.
const KeySize = 32

// AEAD encrypts text with an authenticated cipher and emits base64.
//
// Format: base64(nonce || ciphertext || tag)
//
// By default every Encode uses a fresh random nonce, so the same plaintext
// produces different output each time. That is fine for values but breaks
// key lookups; use Deterministic for keys.
type AEAD struct {
	aead cipher.AEAD
	mac  []byte // nonce derivation key; nil means random nonces
}

// AEADOption configures an AEAD codec.
type AEADOption func(*aeadOptions)

type aeadOptions struct {
	deterministic bool
}

// Deterministic derives the nonce from an HMAC-SHA256 of the plaintext
// (a synthetic IV). Equal inputs give equal outputs, which leaks equality
// but lets encrypted keys be looked up.
func Deterministic() AEADOption {
	return func(o *aeadOptions) {
		o.deterministic = true
	}
}

// NewAES creates an AES-256-GCM codec. The key must be exactly 32 bytes.
func NewAES(key []byte, opts ...AEADOption) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("codec: key must be exactly %d bytes for AES-256, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create GCM: %w", err)
	}

	return newAEAD(gcm, key, opts)
}

// NewXChaCha20 creates an XChaCha20-Poly1305 codec. The key must be exactly
// 32 bytes. Its 24-byte nonce makes random nonces safe for any realistic
// number of writes.
func NewXChaCha20(key []byte, opts ...AEADOption) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("codec: key must be exactly %d bytes for XChaCha20-Poly1305, got %d bytes", KeySize, len(key))
	}

	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create XChaCha20-Poly1305: %w", err)
	}

	return newAEAD(a, key, opts)
}

func newAEAD(a cipher.AEAD, key []byte, opts []AEADOption) (*AEAD, error) {
	var o aeadOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &AEAD{aead: a}
	if o.deterministic {
		// Never reuse the cipher key as the MAC key
		c.mac = make([]byte, sha256.Size)
		r := hkdf.New(sha256.New, key, nil, []byte("prefs codec nonce"))
		if _, err := io.ReadFull(r, c.mac); err != nil {
			return nil, fmt.Errorf("codec: deriving nonce key: %w", err)
		}
	}
	return c, nil
}

func (c *AEAD) nonce(plaintext []byte) ([]byte, error) {
	size := c.aead.NonceSize()
	if c.mac != nil {
		h := hmac.New(sha256.New, c.mac)
		h.Write(plaintext)
		sum := h.Sum(nil)
		if size > len(sum) {
			return nil, fmt.Errorf("codec: nonce size %d exceeds HMAC output", size)
		}
		return sum[:size], nil
	}

	n := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return nil, fmt.Errorf("codec: failed to generate nonce: %w", err)
	}
	return n, nil
}

// Encode encrypts s and returns base64 text.
func (c *AEAD) Encode(s string) (string, error) {
	plaintext := []byte(s)
	nonce, err := c.nonce(plaintext)
	if err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. It fails with ErrInvalid on malformed input and
// when authentication fails (wrong key or tampered data).
func (c *AEAD) Decode(s string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short: %d bytes", ErrInvalid, len(data))
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed: %w", ErrInvalid, err)
	}
	return string(plaintext), nil
}

// DeriveKeys splits one secret into two independent 32-byte keys with
// HKDF-SHA256: one for the key transform and one for the value transform.
// salt may be nil.
func DeriveKeys(secret, salt []byte) (keyKey, valueKey []byte, err error) {
	if len(secret) == 0 {
		return nil, nil, fmt.Errorf("codec: empty secret")
	}

	keyKey = make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte("prefs keys")), keyKey); err != nil {
		return nil, nil, err
	}
	valueKey = make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte("prefs values")), valueKey); err != nil {
		return nil, nil, err
	}
	return keyKey, valueKey, nil
}
