package crypto

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/opd-ai/navlink/limits"
)

// Tag is the 32-byte HMAC-SHA256 authentication tag carried in each secured
// packet.
type Tag [limits.TagSize]byte

// Authenticator generates and verifies packet authentication tags with
// HMAC-SHA256.
//
// Like CipherEngine, an Authenticator is immutable after construction; key
// rotation replaces the instance. The zero value fails every call.
type Authenticator struct {
	key  [limits.KeySize]byte
	init bool
}

// NewAuthenticator creates an authenticator keyed with a 32-byte MAC key.
// An all-zero key is rejected.
func NewAuthenticator(key [limits.KeySize]byte) (*Authenticator, error) {
	if isZeroKey(key) {
		return nil, ErrZeroKey
	}
	return &Authenticator{key: key, init: true}, nil
}

// Ready reports whether the authenticator holds key material.
func (a *Authenticator) Ready() bool {
	return a != nil && a.init
}

// Generate computes the tag over a message. The message is bounded by
// limits.MaxCryptoPayload, mirroring the cipher's bound.
func (a *Authenticator) Generate(message []byte) (Tag, error) {
	if !a.Ready() {
		return Tag{}, ErrNotInitialized
	}
	if err := limits.ValidateCryptoPayload(message); err != nil {
		return Tag{}, err
	}

	mac := hmac.New(sha256.New, a.key[:])
	mac.Write(message)
	var tag Tag
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

// Verify recomputes the expected tag and compares it in constant time.
// Any failure, including an uninitialized authenticator or an oversized
// message, reports false.
func (a *Authenticator) Verify(message []byte, tag Tag) bool {
	expected, err := a.Generate(message)
	if err != nil {
		return false
	}
	return ConstantTimeCompare(expected[:], tag[:])
}

// ConstantTimeCompare compares two byte slices without leaking the position
// of the first mismatch through timing. hmac.Equal XOR-accumulates over the
// full length regardless of where bytes differ.
func ConstantTimeCompare(a, b []byte) bool {
	return hmac.Equal(a, b)
}
