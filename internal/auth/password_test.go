package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams keeps Argon2 cheap enough for unit tests.
var testParams = Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(testParams)

	encoded, err := h.Hash("Valid1Pass!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=64,t=1,p=1$"))

	ok, err := h.Verify("Valid1Pass!", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("Valid1Pass?", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_FreshSaltPerCall(t *testing.T) {
	h := NewHasher(testParams)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_VerifiesHashesFromOtherParams(t *testing.T) {
	older := NewHasher(Argon2Params{MemoryKiB: 32, Iterations: 1, Parallelism: 1})
	encoded, err := older.Hash("secret")
	require.NoError(t, err)

	ok, err := NewHasher(testParams).Verify("secret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_MalformedHash(t *testing.T) {
	h := NewHasher(testParams)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5",
		"$argon2id$v=16$m=64,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := h.Verify("secret", encoded)
		assert.False(t, ok, encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
		assert.ErrorIs(t, err, ErrHashing, encoded)
	}
}

func TestHasher_RejectsExcessiveCost(t *testing.T) {
	expensive := NewHasher(Argon2Params{MemoryKiB: 64, Iterations: 9, Parallelism: 1})
	encoded, err := expensive.Hash("secret")
	require.NoError(t, err)

	_, err = NewHasher(testParams).Verify("secret", encoded)
	assert.ErrorIs(t, err, ErrInvalidHash)

	huge := "$argon2id$v=19$m=4194304,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2tra2tra2tra2tra2tra2tra2tra2tra2tra2tra2s"
	_, err = NewHasher(testParams).Verify("secret", huge)
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestHasher_LoweredCostStillVerifiesDefaultHashes(t *testing.T) {
	encoded, err := NewHasher(DefaultArgon2Params()).Hash("secret")
	require.NoError(t, err)

	lowered := NewHasher(Argon2Params{MemoryKiB: 4096, Iterations: 1, Parallelism: 1})
	ok, err := lowered.Verify("secret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestHasher_RandomFailure(t *testing.T) {
	h := NewHasher(testParams)
	h.rand = failingReader{}

	_, err := h.Hash("secret")
	assert.ErrorIs(t, err, ErrHashing)
}

func TestNewHasher_FillsDefaults(t *testing.T) {
	assert.Equal(t, DefaultArgon2Params(), NewHasher(Argon2Params{}).Params())
}
