package utils

import (
	"testing"
	"time"
)

func init() {
	SetJWTSecret("test-secret-key-for-testing")
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(1, "testuser", 24)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}

	if len(token) < 50 {
		t.Errorf("token seems too short: %d chars", len(token))
	}
}

func TestGenerateToken_DifferentTokens(t *testing.T) {
	token1, _ := GenerateToken(1, "user1", 24)
	token2, _ := GenerateToken(2, "user2", 24)

	if token1 == token2 {
		t.Error("different users should produce different tokens")
	}
}

func TestParseToken(t *testing.T) {
	token, _ := GenerateToken(42, "testuser", 24)

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.UserID != 42 {
		t.Errorf("UserID = %d, expected 42", claims.UserID)
	}
	if claims.Username != "testuser" {
		t.Errorf("Username = %q, expected %q", claims.Username, "testuser")
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		if _, err := ParseToken(token); err == nil {
			t.Errorf("ParseToken(%q) should return error", token)
		}
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	SetJWTSecret("original-secret")
	token, _ := GenerateToken(1, "user", 24)

	SetJWTSecret("different-secret")
	_, err := ParseToken(token)

	SetJWTSecret("test-secret-key-for-testing")

	if err == nil {
		t.Error("ParseToken should fail with wrong secret")
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, _ := GenerateToken(1, "user", -1)
	if _, err := ParseToken(token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestGenerateToken_Expiration(t *testing.T) {
	token, _ := GenerateToken(1, "user", 1)
	claims, _ := ParseToken(token)

	expiresAt := claims.ExpiresAt.Time
	now := time.Now()

	if expiresAt.Before(now) {
		t.Error("token should not be expired immediately")
	}

	diff := expiresAt.Sub(now.Add(1 * time.Hour))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiration time is off by more than 1 minute: %v", diff)
	}
}
