// Package auth issues and verifies the HS256 bearer tokens used by the sales API.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrMissingToken is returned when no token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps signature, expiry, issuer and shape failures.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrWrongTokenType is returned when a refresh token is presented where an access token is
	// expected, or the other way round.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Config holds the shared signing secret and expected issuer.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the verified view of a token.
type Claims struct {
	ID        string
	Subject   string
	Username  string
	TokenType string
	Scopes    map[string]struct{}
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}

// ScopeList returns the granted scopes in no particular order.
func (c *Claims) ScopeList() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Scopes))
	for scope := range c.Scopes {
		out = append(out, scope)
	}
	return out
}

// tokenClaims is the signed JWT body.
type tokenClaims struct {
	jwt.RegisteredClaims
	Username  string    `json:"username,omitempty"`
	TokenType string    `json:"token_type"`
	Scopes    scopeList `json:"scopes,omitempty"`
}

// scopeList decodes either a JSON array or an OAuth-style space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(b, &joined); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = strings.Fields(joined)
	return nil
}

// Parse verifies signature, issuer and expiry and returns the claims of an access or refresh
// token.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if tc.TokenType != TokenTypeAccess && tc.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, tc.TokenType)
	}

	out := &Claims{
		ID:        tc.ID,
		Subject:   tc.Subject,
		Username:  tc.Username,
		TokenType: tc.TokenType,
		Scopes:    make(map[string]struct{}, len(tc.Scopes)),
		ExpiresAt: tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		out.IssuedAt = tc.IssuedAt.Time
	}
	for _, scope := range tc.Scopes {
		if scope != "" {
			out.Scopes[scope] = struct{}{}
		}
	}
	return out, nil
}

// ParseAccess is Parse restricted to access tokens.
func ParseAccess(token string, cfg Config) (*Claims, error) {
	claims, err := Parse(token, cfg)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
