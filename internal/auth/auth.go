// Package auth mints and verifies the bearer tokens adapters present on
// every control-plane call (spec §4.1).
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors surfaced by [TokenManager.Verify].
var (
	ErrNoToken          = errors.New("no authentication token provided")
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrRevokedToken     = errors.New("token has been revoked")
	ErrMissingClaim     = errors.New("token is missing a required claim")
	ErrWrongTenant      = errors.New("token was minted for a different tenant")
	ErrWrongWorkspace   = errors.New("token was minted for a different workspace")
	ErrLocalTenantUnset = errors.New("local tenant is not configured")
)

// adapterTokenType is the required "type" claim value (spec §4.1); it
// distinguishes adapter tokens from any other bearer token this process
// might one day mint.
const adapterTokenType = "adapter"

// Claims is the JWT payload minted for a registered adapter.
type Claims struct {
	Type         string   `json:"type"`
	TenantID     string   `json:"tenant_id"`
	AdapterID    string   `json:"adapter_id"`
	WorkspaceID  string   `json:"workspace_id,omitempty"`
	Capabilities []string `json:"allowed_capabilities"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies adapter tokens with a single HMAC secret,
// scoped to one local tenant (and, if configured, one local workspace) —
// this control plane is single-tenant, so a token minted for any other
// tenant or workspace is rejected outright (spec §4.1, invariant I1).
type TokenManager struct {
	secretKey        []byte
	localTenantID    string
	localWorkspaceID string

	mu      sync.RWMutex
	revoked map[string]time.Time // token ID -> revocation time
}

// NewTokenManager builds a [TokenManager] signing with secretKey (HS256),
// verifying that every token belongs to localTenantID and, if
// localWorkspaceID is non-empty, to that workspace too.
func NewTokenManager(secretKey, localTenantID, localWorkspaceID string) *TokenManager {
	return &TokenManager{
		secretKey:        []byte(secretKey),
		localTenantID:    localTenantID,
		localWorkspaceID: localWorkspaceID,
		revoked:          make(map[string]time.Time),
	}
}

// Mint issues a signed token for adapterID valid for ttl.
func (tm *TokenManager) Mint(tenantID, adapterID, workspaceID string, capabilities []string, ttl time.Duration) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("generating token id: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		Type:         adapterTokenType,
		TenantID:     tenantID,
		AdapterID:    adapterID,
		WorkspaceID:  workspaceID,
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   "adapter:" + adapterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// Verify parses and validates tokenString, rejecting expired, malformed, or
// revoked tokens.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != adapterTokenType {
		return nil, ErrInvalidToken
	}
	if claims.AdapterID == "" || claims.TenantID == "" {
		return nil, ErrMissingClaim
	}
	if tm.localTenantID == "" {
		return nil, ErrLocalTenantUnset
	}
	if claims.TenantID != tm.localTenantID {
		return nil, ErrWrongTenant
	}
	if tm.localWorkspaceID != "" && claims.WorkspaceID != tm.localWorkspaceID {
		return nil, ErrWrongWorkspace
	}

	tm.mu.RLock()
	_, revoked := tm.revoked[claims.ID]
	tm.mu.RUnlock()
	if revoked {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// Revoke adds a token's ID to the revocation set, without verifying it
// first — callers that already hold valid claims should pass claims.ID.
func (tm *TokenManager) Revoke(tokenID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.revoked[tokenID] = time.Now()
}

// CleanupRevoked drops revocation entries older than maxAge, bounding the
// revocation set's memory footprint.
func (tm *TokenManager) CleanupRevoked(maxAge time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, revokedAt := range tm.revoked {
		if revokedAt.Before(cutoff) {
			delete(tm.revoked, id)
		}
	}
}

type claimsContextKey struct{}

// ContextWithClaims returns a context carrying claims for downstream
// handlers.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts claims previously attached by
// [ContextWithClaims].
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}

func generateTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
