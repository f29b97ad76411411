package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, "ext-42", "Alice", "alice@example.com", RoleUser)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "ext-42", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestRejects(t *testing.T) {
	good, err := GenerateToken("secret", time.Hour, "1", "", "", RoleAdmin)
	require.NoError(t, err)
	expired, err := GenerateToken("secret", -time.Minute, "1", "", "", RoleAdmin)
	require.NoError(t, err)
	noSubject, err := GenerateToken("secret", time.Hour, "", "", "", RoleUser)
	require.NoError(t, err)

	for name, tc := range map[string]struct{ secret, token string }{
		"wrong secret": {"other", good},
		"expired":      {"secret", expired},
		"no subject":   {"secret", noSubject},
		"garbage":      {"secret", "not.a.token"},
	} {
		_, err := ParseToken(tc.secret, tc.token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = GenerateToken("", time.Hour, "1", "", "", RoleUser)
	assert.Error(t, err)
}
