package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "ws-1")

	tok, err := tm.Mint("tenant-1", "adapter-1", "ws-1", []string{"fs.read"}, time.Hour)
	require.NoError(t, err)

	claims, err := tm.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "adapter", claims.Type)
	assert.Equal(t, "adapter:adapter-1", claims.Subject)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "adapter-1", claims.AdapterID)
	assert.Equal(t, "ws-1", claims.WorkspaceID)
	assert.Equal(t, []string{"fs.read"}, claims.Capabilities)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	tok, err := tm.Mint("tenant-1", "adapter-1", "", nil, -time.Minute)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")
	other := NewTokenManager("different-secret", "tenant-1", "")

	tok, err := other.Mint("tenant-1", "adapter-1", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")
	_, err := tm.Verify("")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestVerifyRejectsWrongTenant(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	tok, err := tm.Mint("tenant-2", "adapter-1", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrWrongTenant)
}

func TestVerifyRejectsWrongWorkspaceWhenConfigured(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "ws-1")

	tok, err := tm.Mint("tenant-1", "adapter-1", "ws-2", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrWrongWorkspace)
}

func TestVerifyIgnoresWorkspaceWhenNotConfigured(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	tok, err := tm.Mint("tenant-1", "adapter-1", "any-workspace", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.NoError(t, err)
}

func TestVerifyRejectsWhenLocalTenantUnconfigured(t *testing.T) {
	tm := NewTokenManager("test-secret", "", "")

	tok, err := tm.Mint("tenant-1", "adapter-1", "", nil, time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrLocalTenantUnset)
}

func TestVerifyRejectsNonAdapterType(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	claims := &Claims{
		Type: "operator", TenantID: "tenant-1", AdapterID: "adapter-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "tok-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secretKey)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingAdapterIDClaim(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	claims := &Claims{
		Type: "adapter", TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "tok-2", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secretKey)
	require.NoError(t, err)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestRevokeInvalidatesToken(t *testing.T) {
	tm := NewTokenManager("test-secret", "tenant-1", "")

	tok, err := tm.Mint("tenant-1", "adapter-1", "", nil, time.Hour)
	require.NoError(t, err)

	claims, err := tm.Verify(tok)
	require.NoError(t, err)

	tm.Revoke(claims.ID)

	_, err = tm.Verify(tok)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestContextRoundTrip(t *testing.T) {
	claims := &Claims{TenantID: "t1", AdapterID: "a1"}
	ctx := ContextWithClaims(t.Context(), claims)

	got, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, claims, got)
}
