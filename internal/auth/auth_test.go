package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	s := NewService("test-signing-secret")
	s.RegisterKey("operator-key", "operator-secret", "chain-owner")
	return s
}

func TestGenerateTokenBindsAccountAndScopes(t *testing.T) {
	s := newTestService()

	token, err := s.GenerateToken(Credentials{APIKey: "operator-key", APISecret: "operator-secret"})
	require.NoError(t, err)
	assert.Equal(t, "chain-owner", token.Account)

	claims, err := s.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "chain-owner", claims.Account)
	assert.Equal(t, "chain-owner", claims.Subject)
	assert.True(t, claims.HasScope(ScopeSubmit))
	assert.True(t, claims.HasScope(ScopeQuery))
	assert.False(t, claims.HasScope("admin"))
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	s := newTestService()

	_, err := s.GenerateToken(Credentials{APIKey: "operator-key", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.GenerateToken(Credentials{APIKey: "unknown", APISecret: "operator-secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterKeyExplicitScopes(t *testing.T) {
	s := NewService("test-signing-secret")
	s.RegisterKey("reader-key", "reader-secret", "observer", ScopeQuery)

	token, err := s.GenerateToken(Credentials{APIKey: "reader-key", APISecret: "reader-secret"})
	require.NoError(t, err)

	claims, err := s.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "observer", claims.Account)
	assert.True(t, claims.HasScope(ScopeQuery))
	assert.False(t, claims.HasScope(ScopeSubmit))
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	s := newTestService()
	other := NewService("different-secret")
	other.RegisterKey("operator-key", "operator-secret", "chain-owner")

	token, err := other.GenerateToken(Credentials{APIKey: "operator-key", APISecret: "operator-secret"})
	require.NoError(t, err)

	_, err = s.ValidateToken(token.Token)
	assert.Error(t, err)
}
