package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRefreshToken(t *testing.T) {
	tok, err := NewRefreshToken(14)
	require.NoError(t, err)
	// 48 random bytes hex-encoded: 96 chars, comfortably past the 64-char floor.
	require.Len(t, tok.Raw, 96)
	require.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), tok.Exp, time.Minute)

	other, err := NewRefreshToken(14)
	require.NoError(t, err)
	require.NotEqual(t, tok.Raw, other.Raw)
}

func TestHashRefreshRaw(t *testing.T) {
	h := HashRefreshRaw("some-token")
	require.Len(t, h, 64) // sha256 hex
	require.NotEqual(t, "some-token", h)
	require.Equal(t, h, HashRefreshRaw("some-token"))
	require.NotEqual(t, h, HashRefreshRaw("some-other-token"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("longenough1", 4)
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "longenough1"))
	require.False(t, VerifyPassword(hash, "wrongpassword"))
}
