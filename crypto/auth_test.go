package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/opd-ai/navlink/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(testKey(t))
	require.NoError(t, err)
	return auth
}

func TestNewAuthenticatorRejectsZeroKey(t *testing.T) {
	var zero [limits.KeySize]byte
	_, err := NewAuthenticator(zero)
	assert.ErrorIs(t, err, ErrZeroKey)
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	auth := testAuthenticator(t)

	message := []byte("armed mode transition")
	tag, err := auth.Generate(message)
	require.NoError(t, err)

	assert.True(t, auth.Verify(message, tag), "valid tag rejected")
}

func TestVerifyRejectsSingleBitMutations(t *testing.T) {
	auth := testAuthenticator(t)

	message := make([]byte, limits.CommandBlockSize)
	_, err := rand.Read(message)
	require.NoError(t, err)

	tag, err := auth.Generate(message)
	require.NoError(t, err)

	for i := range message {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(message))
			copy(mutated, message)
			mutated[i] ^= 1 << bit

			assert.False(t, auth.Verify(mutated, tag),
				"mutation at byte %d bit %d accepted", i, bit)
		}
	}
}

func TestVerifyRejectsTamperedTag(t *testing.T) {
	auth := testAuthenticator(t)

	message := []byte("telemetry frame")
	tag, err := auth.Generate(message)
	require.NoError(t, err)

	tampered := tag
	tampered[0] ^= 0x01

	assert.False(t, auth.Verify(message, tampered), "tampered tag accepted")
}

func TestDifferentKeysProduceDifferentTags(t *testing.T) {
	a1 := testAuthenticator(t)
	a2 := testAuthenticator(t)

	message := []byte("shared plaintext")
	t1, err := a1.Generate(message)
	require.NoError(t, err)
	t2, err := a2.Generate(message)
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2, "independent keys produced identical tags")
}

func TestAuthenticatorPayloadBounds(t *testing.T) {
	auth := testAuthenticator(t)

	_, err := auth.Generate(nil)
	assert.ErrorIs(t, err, limits.ErrPayloadEmpty)

	oversized := make([]byte, limits.MaxCryptoPayload+1)
	_, err = auth.Generate(oversized)
	assert.ErrorIs(t, err, limits.ErrPayloadTooLarge)
}

func TestUninitializedAuthenticatorFailsClosed(t *testing.T) {
	var nilAuth *Authenticator
	_, err := nilAuth.Generate([]byte{1})
	assert.ErrorIs(t, err, ErrNotInitialized)

	zero := &Authenticator{}
	_, err = zero.Generate([]byte{1})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, zero.Verify([]byte{1}, Tag{}))
	assert.False(t, zero.Ready())
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	assert.True(t, ConstantTimeCompare(a, b))
	assert.False(t, ConstantTimeCompare(a, c))
	assert.False(t, ConstantTimeCompare(a, a[:3]))
}
