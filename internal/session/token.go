package session

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"golang.org/x/oauth2"
)

const bearerPrefix = "Bearer "

// Claims are the access token claims issued by the JobCrew API.
type Claims struct {
	jwt.RegisteredClaims
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifierType"`
}

// TokenInfo describes an access token for display and logging.
// It is decoded without verifying the signature; the server remains the
// only authority on whether a token is valid.
type TokenInfo struct {
	Subject        string
	Identifier     string
	IdentifierType string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Fingerprint    string
}

// Expired reports whether the token's exp claim is before now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// ParseTokenInfo decodes the claims of a JWT access token.
func ParseTokenInfo(token string) (*TokenInfo, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	info := &TokenInfo{
		Subject:        claims.Subject,
		Identifier:     claims.Identifier,
		IdentifierType: claims.IdentifierType,
		Fingerprint:    Fingerprint(token),
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}

	return info, nil
}

// Fingerprint is a short base58 digest of a token, safe to log.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:12])
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header http.Header) string {
	value := header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(value, bearerPrefix))
}

// storeTokenSource exposes the held access token as an oauth2.TokenSource.
type storeTokenSource struct {
	store *Store
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	access := s.store.Token()
	if access == "" {
		return nil, ErrNotLoggedIn
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if info, err := ParseTokenInfo(access); err == nil {
		token.Expiry = info.ExpiresAt
	}

	return token, nil
}
