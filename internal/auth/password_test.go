package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("secret-pass1")
	require.NoError(t, err)
	require.NotEqual(t, "secret-pass1", hash)

	require.NoError(t, h.Compare(hash, "secret-pass1"))
	require.Error(t, h.Compare(hash, "secret-pass2"))
}

func TestIsPublic(t *testing.T) {
	require.True(t, IsPublic("/v1/auth/login"))
	require.True(t, IsPublic("/v1/auth/login/"))
	require.True(t, IsPublic("/healthz"))
	require.False(t, IsPublic("/v1/auth/me"))
	require.False(t, IsPublic("/v1/records"))
}
