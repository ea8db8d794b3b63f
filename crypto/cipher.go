// Package crypto implements the symmetric primitives of the navlink secure
// pipeline: the AES-256-CTR cipher engine, the HMAC-SHA256 authenticator,
// key derivation, and atomic key rotation.
//
// The package sequences and gates primitives from the standard library and
// golang.org/x/crypto; it does not implement any primitive itself.
//
// Example:
//
//	engine, err := crypto.NewCipherEngine(key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	iv, err := engine.GenerateIV()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ciphertext, err := engine.Encrypt(block, iv)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/opd-ai/navlink/limits"
)

// IV is the 16-byte AES-CTR initialization vector carried in each secured
// packet. A fresh IV must be drawn for every outbound packet.
type IV [limits.IVSize]byte

var (
	// ErrNotInitialized indicates a crypto operation before key material was
	// provided.
	ErrNotInitialized = errors.New("cipher engine not initialized")

	// ErrZeroKey indicates an all-zero key, which is never valid key
	// material.
	ErrZeroKey = errors.New("key is all zeros")
)

// CipherEngine encrypts and decrypts the fixed payload blocks of secured
// packets with AES-256 in counter mode.
//
// An engine is immutable after construction; key rotation replaces the
// engine instance (see KeyRing), which is what makes a rotation atomic. The
// zero value is unusable and fails every call.
type CipherEngine struct {
	block cipher.Block
}

// NewCipherEngine creates an engine keyed with a 32-byte AES-256 key.
// An all-zero key is rejected: it means the caller skipped provisioning.
func NewCipherEngine(key [limits.KeySize]byte) (*CipherEngine, error) {
	if isZeroKey(key) {
		return nil, ErrZeroKey
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes init: %w", err)
	}
	return &CipherEngine{block: block}, nil
}

// Ready reports whether the engine holds key material.
func (e *CipherEngine) Ready() bool {
	return e != nil && e.block != nil
}

// GenerateIV draws a fresh IV from the system CSPRNG. It fails closed: an
// uninitialized engine or a failing random source returns an error, never a
// zero or predictable IV.
func (e *CipherEngine) GenerateIV() (IV, error) {
	if !e.Ready() {
		return IV{}, ErrNotInitialized
	}
	var iv IV
	if _, err := rand.Read(iv[:]); err != nil {
		return IV{}, fmt.Errorf("iv generation: %w", err)
	}
	return iv, nil
}

// Encrypt encrypts a payload block with the given IV. The payload is bounded
// by limits.MaxCryptoPayload to keep call latency inside the control loop
// budget.
func (e *CipherEngine) Encrypt(plaintext []byte, iv IV) ([]byte, error) {
	return e.apply(plaintext, iv)
}

// Decrypt decrypts a payload block with the IV it was encrypted under.
// Counter mode is algebraically symmetric, so this is the same transform as
// Encrypt applied to the ciphertext.
func (e *CipherEngine) Decrypt(ciphertext []byte, iv IV) ([]byte, error) {
	return e.apply(ciphertext, iv)
}

// apply is the single CTR keystream XOR both directions share.
func (e *CipherEngine) apply(src []byte, iv IV) ([]byte, error) {
	if !e.Ready() {
		return nil, ErrNotInitialized
	}
	if err := limits.ValidateCryptoPayload(src); err != nil {
		return nil, err
	}

	// The IV is used directly as the initial counter block; the counter
	// increments through its low-order bytes.
	dst := make([]byte, len(src))
	stream := cipher.NewCTR(e.block, iv[:])
	stream.XORKeyStream(dst, src)
	return dst, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [limits.KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
