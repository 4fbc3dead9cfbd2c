package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := fastHasher()
	hash, err := h.Hash("Secret#123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret#123", hash)
	assert.True(t, h.Verify("Secret#123", hash))
	assert.False(t, h.Verify("secret#123", hash))
}

func TestBcryptHasherMalformedHash(t *testing.T) {
	h := fastHasher()
	assert.False(t, h.Verify("Secret#123", ""))
	assert.False(t, h.Verify("Secret#123", "not-a-bcrypt-hash"))
}

func TestNewBcryptHasherCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(0).cost)
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 10, NewBcryptHasher(10).cost)

	hash, err := NewBcryptHasher(bcrypt.MinCost).Hash("x")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
