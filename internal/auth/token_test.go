// ABOUTME: Unit tests for reading agent identity from JWTs
// ABOUTME: Tests verified and unverified reads, expiry, and missing claims

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing")

func TestJWTReader_VerifiedToken(t *testing.T) {
	token, err := Generate(testSecret, "agent-123", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	id, err := NewJWTReader(testSecret).Identity(token)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if id.AgentID != "agent-123" {
		t.Errorf("AgentID = %q, want %q", id.AgentID, "agent-123")
	}
	if id.ExpiresAt.IsZero() {
		t.Error("ExpiresAt not set")
	}
}

func TestJWTReader_UnverifiedToken(t *testing.T) {
	token, err := Generate([]byte("platform-only-secret"), "agent-456", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	id, err := NewJWTReader(nil).Identity(token)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if id.AgentID != "agent-456" {
		t.Errorf("AgentID = %q, want %q", id.AgentID, "agent-456")
	}
}

func TestJWTReader_WrongSecret(t *testing.T) {
	token, err := Generate([]byte("other-secret"), "agent-123", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = NewJWTReader(testSecret).Identity(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Identity() error = %v, want ErrInvalidToken", err)
	}
}

func TestJWTReader_ExpiredToken(t *testing.T) {
	token, err := Generate(testSecret, "agent-123", -time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for name, reader := range map[string]*JWTReader{
		"verified":   NewJWTReader(testSecret),
		"unverified": NewJWTReader(nil),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := reader.Identity(token)
			if !errors.Is(err, ErrExpiredToken) {
				t.Errorf("Identity() error = %v, want ErrExpiredToken", err)
			}
		})
	}
}

func TestJWTReader_MissingSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": "nameless",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = NewJWTReader(nil).Identity(token)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Identity() error = %v, want ErrMissingClaim", err)
	}
}

func TestJWTReader_NameClaimAndNoExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "agent-9",
		"name": "Scout",
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	id, err := NewJWTReader(nil).Identity(token)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if id.Name != "Scout" {
		t.Errorf("Name = %q, want %q", id.Name, "Scout")
	}
	if !id.ExpiresAt.IsZero() {
		t.Errorf("ExpiresAt = %v, want zero", id.ExpiresAt)
	}
}

func TestJWTReader_Garbage(t *testing.T) {
	tests := []string{"", "not-a-jwt-token", "header.payload.signature"}

	for _, tok := range tests {
		t.Run(tok, func(t *testing.T) {
			for _, reader := range []*JWTReader{NewJWTReader(testSecret), NewJWTReader(nil)} {
				if _, err := reader.Identity(tok); !errors.Is(err, ErrInvalidToken) {
					t.Errorf("Identity(%q) error = %v, want ErrInvalidToken", tok, err)
				}
			}
		})
	}
}
