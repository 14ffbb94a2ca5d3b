package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherRoundtrip(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, hasher.Check("correct horse battery staple", hash))
	assert.False(t, hasher.Check("correct horse battery stapl", hash))
	assert.False(t, hasher.Check("", hash))
}

func TestPasswordHasherDistinctHashes(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	first, err := hasher.Hash("pw1")
	require.NoError(t, err)
	second, err := hasher.Hash("pw1")
	require.NoError(t, err)

	// bcrypt salts every hash, so equal inputs still produce distinct hashes.
	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Check("pw1", first))
	assert.True(t, hasher.Check("pw1", second))
}

func TestPasswordHasherMalformedHashFailsClosed(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	assert.False(t, hasher.Check("pw1", ""))
	assert.False(t, hasher.Check("pw1", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Check("pw1", "$2a$zz$garbage"))
}

func TestPasswordHasherCostOutOfRangeUsesDefault(t *testing.T) {
	hasher := NewPasswordHasher(99)
	assert.Equal(t, bcrypt.DefaultCost, hasher.cost)

	hasher = NewPasswordHasher(0)
	assert.Equal(t, bcrypt.DefaultCost, hasher.cost)
}
