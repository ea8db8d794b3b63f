package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/opd-ai/navlink/limits"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	password := []byte("ground-station-passphrase")
	salt := []byte("vehicle-07")

	k1, err := DeriveKey(password, salt, MinDeriveIterations)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	k2, err := DeriveKey(password, salt, MinDeriveIterations)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	if k1 != k2 {
		t.Error("same inputs produced different keys")
	}
	if isZeroKey(k1) {
		t.Error("derived key is all zeros")
	}
}

func TestDeriveKeyInputSensitivity(t *testing.T) {
	base, err := DeriveKey([]byte("password"), []byte("salt"), MinDeriveIterations)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}

	tests := []struct {
		name       string
		password   []byte
		salt       []byte
		iterations int
	}{
		{"different password", []byte("Password"), []byte("salt"), MinDeriveIterations},
		{"different salt", []byte("password"), []byte("Salt"), MinDeriveIterations},
		{"different iterations", []byte("password"), []byte("salt"), MinDeriveIterations + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.password, tt.salt, tt.iterations)
			if err != nil {
				t.Fatalf("DeriveKey() error: %v", err)
			}
			if key == base {
				t.Error("changed input produced identical key")
			}
		})
	}
}

func TestDeriveKeyRejectsWeakConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		password   []byte
		salt       []byte
		iterations int
		wantErr    error
	}{
		{"empty password", nil, []byte("salt"), MinDeriveIterations, ErrEmptyPassword},
		{"empty salt", []byte("password"), nil, MinDeriveIterations, ErrEmptySalt},
		{"iterations below floor", []byte("password"), []byte("salt"), MinDeriveIterations - 1, ErrIterationsTooLow},
		{"zero iterations", []byte("password"), []byte("salt"), 0, ErrIterationsTooLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveKey(tt.password, tt.salt, tt.iterations); !errors.Is(err, tt.wantErr) {
				t.Errorf("DeriveKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionKeysIndependent(t *testing.T) {
	var secret [limits.SharedSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}

	cipherKey, macKey, err := SessionKeys(secret)
	if err != nil {
		t.Fatalf("SessionKeys() error: %v", err)
	}
	if cipherKey == macKey {
		t.Error("cipher and MAC keys are identical")
	}
	if bytes.Equal(cipherKey[:], secret[:]) || bytes.Equal(macKey[:], secret[:]) {
		t.Error("raw shared secret used directly as a key")
	}
	if isZeroKey(cipherKey) || isZeroKey(macKey) {
		t.Error("derived session key is all zeros")
	}
}

func TestSessionKeysDeterministic(t *testing.T) {
	var secret [limits.SharedSecretSize]byte
	secret[0] = 0x7F

	c1, m1, err := SessionKeys(secret)
	if err != nil {
		t.Fatalf("SessionKeys() error: %v", err)
	}
	c2, m2, err := SessionKeys(secret)
	if err != nil {
		t.Fatalf("SessionKeys() error: %v", err)
	}
	if c1 != c2 || m1 != m2 {
		t.Error("same secret produced different session keys")
	}
}

func TestSessionKeysRejectZeroSecret(t *testing.T) {
	var zero [limits.SharedSecretSize]byte
	if _, _, err := SessionKeys(zero); !errors.Is(err, ErrZeroKey) {
		t.Errorf("SessionKeys(zero) error = %v, want ErrZeroKey", err)
	}
}
