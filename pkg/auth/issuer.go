package auth

import (
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair is the access/refresh pair handed to clients on login and refresh.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Issuer signs HS256 tokens.
type Issuer struct {
	cfg        Config
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer constructs an Issuer. Non-positive lifetimes fall back to 60 minutes for access
// tokens and 24 hours for refresh tokens.
func NewIssuer(cfg Config, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 60 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &Issuer{cfg: cfg, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock returns a copy of the issuer that stamps tokens using now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Config returns the verification parameters matching this issuer.
func (i *Issuer) Config() Config {
	return i.cfg
}

// IssuePair signs a fresh access and refresh token for the subject.
func (i *Issuer) IssuePair(subject, username string, scopes []string) (TokenPair, error) {
	access, err := i.sign(subject, username, TokenTypeAccess, scopes, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(subject, username, TokenTypeRefresh, scopes, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh validates a refresh token and rotates it into a new pair carrying the same
// subject and scopes.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := Parse(refreshToken, i.cfg)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return TokenPair{}, ErrWrongTokenType
	}
	return i.IssuePair(claims.Subject, claims.Username, claims.ScopeList())
}

func (i *Issuer) sign(subject, username, tokenType string, scopes []string, ttl time.Duration) (string, error) {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)

	now := i.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:  username,
		TokenType: tokenType,
		Scopes:    sorted,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}
