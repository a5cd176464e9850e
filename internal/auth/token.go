// ABOUTME: Agent identity extraction from platform-issued JWTs
// ABOUTME: Verifies HS256 tokens when a secret is configured, otherwise reads claims only

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is what the bridge learns from its token.
type Identity struct {
	AgentID   string
	Name      string
	ExpiresAt time.Time
}

// TokenReader extracts an Identity from a token string.
type TokenReader interface {
	Identity(tokenString string) (Identity, error)
}

// JWTReader reads HS256 JWTs. With a nil secret, signatures are not checked.
type JWTReader struct {
	secret []byte
	now    func() time.Time
}

// NewJWTReader creates a reader. Pass nil to skip signature verification.
func NewJWTReader(secret []byte) *JWTReader {
	return &JWTReader{secret: secret, now: time.Now}
}

// Identity parses the token and returns the agent id from the "sub" claim.
func (r *JWTReader) Identity(tokenString string) (Identity, error) {
	claims := jwt.MapClaims{}
	opts := []jwt.ParserOption{jwt.WithTimeFunc(r.now)}

	if len(r.secret) > 0 {
		_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return r.secret, nil
		}, opts...)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return Identity{}, ErrExpiredToken
			}
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := jwt.NewParser(opts...).ParseUnverified(tokenString, claims); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if exp != nil && !r.now().Before(exp.Time) {
			return Identity{}, ErrExpiredToken
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	id := Identity{AgentID: sub}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// Generate creates an HS256 token for agentID. It is used by tests and local
// tooling; the platform issues real tokens.
func Generate(secret []byte, agentID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": agentID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
