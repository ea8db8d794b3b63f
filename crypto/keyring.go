package crypto

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/navlink/limits"
)

// KeyRing owns the current cipher and MAC key material and swaps both
// atomically when a key exchange completes.
//
// Packet processing must take one Current() snapshot and use that pair for
// the whole packet: a rotation concurrent with processing then either fully
// precedes or fully follows the packet, never splits it across an old cipher
// key and a new MAC key.
type KeyRing struct {
	mu     sync.RWMutex
	cipher *CipherEngine
	auth   *Authenticator
}

// NewKeyRing creates an empty ring. Ready reports false until keys are
// provisioned or rotated in.
func NewKeyRing() *KeyRing {
	return &KeyRing{}
}

// Provision installs pre-shared cipher and MAC keys, typically at boot from
// persisted configuration. Prior state is untouched on failure.
func (k *KeyRing) Provision(cipherKey, macKey [limits.KeySize]byte) error {
	engine, err := NewCipherEngine(cipherKey)
	if err != nil {
		return err
	}
	auth, err := NewAuthenticator(macKey)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.cipher = engine
	k.auth = auth
	k.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Provision",
		"source":   "pre-shared",
	}).Info("Key material installed")
	return nil
}

// RotateFromSecret derives fresh session keys from an ECDH shared secret and
// swaps both engines in one critical section. Prior state is untouched on
// failure.
func (k *KeyRing) RotateFromSecret(secret [limits.SharedSecretSize]byte) error {
	cipherKey, macKey, err := SessionKeys(secret)
	if err != nil {
		return err
	}
	defer ZeroBytes(cipherKey[:])
	defer ZeroBytes(macKey[:])

	engine, err := NewCipherEngine(cipherKey)
	if err != nil {
		return err
	}
	auth, err := NewAuthenticator(macKey)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.cipher = engine
	k.auth = auth
	k.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RotateFromSecret",
		"source":   "key-exchange",
	}).Info("Session keys rotated")
	return nil
}

// Current returns the cipher/authenticator pair in use, taken under one
// read lock. ok is false while the ring is empty.
func (k *KeyRing) Current() (engine *CipherEngine, auth *Authenticator, ok bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.cipher == nil || k.auth == nil {
		return nil, nil, false
	}
	return k.cipher, k.auth, true
}

// Ready reports whether the ring holds a complete key pair.
func (k *KeyRing) Ready() bool {
	_, _, ok := k.Current()
	return ok
}

// Wipe discards the key material. Subsequent packets fail closed until new
// keys arrive.
func (k *KeyRing) Wipe() {
	k.mu.Lock()
	if k.auth != nil {
		ZeroBytes(k.auth.key[:])
		k.auth.init = false
	}
	k.cipher = nil
	k.auth = nil
	k.mu.Unlock()
}
