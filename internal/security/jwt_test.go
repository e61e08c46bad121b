package security

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	token, errSign := GenerateToken("secret", "u1", "u1@example.com", "pro", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	identity, errVerify := NewJWTVerifier("secret").Verify(token, "u1")
	if errVerify != nil {
		t.Fatalf("verify: %v", errVerify)
	}
	if identity.UID != "u1" || identity.Email != "u1@example.com" || identity.Tier != "pro" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyRejectsMismatchedUser(t *testing.T) {
	token, errSign := GenerateToken("secret", "u1", "", "", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	_, errVerify := NewJWTVerifier("secret").Verify(token, "someone-else")
	if !errors.Is(errVerify, ErrUserMismatch) {
		t.Fatalf("expected ErrUserMismatch, got %v", errVerify)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, errSign := GenerateToken("secret", "u1", "", "", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	_, errVerify := NewJWTVerifier("other-secret").Verify(token, "u1")
	if !errors.Is(errVerify, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errVerify)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, errSign := GenerateToken("secret", "u1", "", "", -time.Minute)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	_, errVerify := NewJWTVerifier("secret").Verify(token, "u1")
	if !errors.Is(errVerify, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errVerify)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, errVerify := NewJWTVerifier("secret").Verify("not-a-token", "u1")
	if !errors.Is(errVerify, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errVerify)
	}
}
