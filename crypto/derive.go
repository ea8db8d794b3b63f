package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/navlink/limits"
)

// MinDeriveIterations is the PBKDF2 cost floor. Configurations below it are
// rejected outright rather than silently weakened.
const MinDeriveIterations = 10000

// HKDF info strings binding each session key to its role. Distinct labels
// guarantee the cipher and MAC keys are computationally independent even
// though both stem from one ECDH secret.
var (
	cipherKeyInfo = []byte("navlink v1 cipher key")
	macKeyInfo    = []byte("navlink v1 mac key")
)

var (
	// ErrIterationsTooLow indicates a PBKDF2 iteration count below the cost
	// floor.
	ErrIterationsTooLow = errors.New("iteration count below minimum")

	// ErrEmptySalt indicates key derivation was attempted without a salt.
	ErrEmptySalt = errors.New("empty salt")

	// ErrEmptyPassword indicates key derivation was attempted without a
	// password.
	ErrEmptyPassword = errors.New("empty password")
)

// DeriveKey derives a 32-byte symmetric key from a password with
// PBKDF2-HMAC-SHA256. Iteration counts below MinDeriveIterations are
// rejected as a guard against weak configuration.
func DeriveKey(password, salt []byte, iterations int) ([limits.KeySize]byte, error) {
	var key [limits.KeySize]byte
	if len(password) == 0 {
		return key, ErrEmptyPassword
	}
	if len(salt) == 0 {
		return key, ErrEmptySalt
	}
	if iterations < MinDeriveIterations {
		return key, fmt.Errorf("%w: %d < %d", ErrIterationsTooLow, iterations, MinDeriveIterations)
	}

	derived := pbkdf2.Key(password, salt, iterations, limits.KeySize, sha256.New)
	copy(key[:], derived)
	ZeroBytes(derived)
	return key, nil
}

// SessionKeys expands an ECDH shared secret into independent cipher and MAC
// keys with HKDF-SHA256. The raw secret itself is never used as a key.
func SessionKeys(secret [limits.SharedSecretSize]byte) (cipherKey, macKey [limits.KeySize]byte, err error) {
	if isZeroKey(secret) {
		return cipherKey, macKey, ErrZeroKey
	}

	if err = hkdfExpand(secret[:], cipherKeyInfo, cipherKey[:]); err != nil {
		return cipherKey, macKey, fmt.Errorf("cipher key derivation: %w", err)
	}
	if err = hkdfExpand(secret[:], macKeyInfo, macKey[:]); err != nil {
		ZeroBytes(cipherKey[:])
		return cipherKey, macKey, fmt.Errorf("mac key derivation: %w", err)
	}
	return cipherKey, macKey, nil
}

func hkdfExpand(secret, info, out []byte) error {
	r := hkdf.New(sha256.New, secret, nil, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return err
	}
	return nil
}
