package auth

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		AccountID: "acc-1",
		Username:  "stu1",
		Role:      "student",
		Name:      "Student One",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.AccountID != "acc-1" || claims.Username != "stu1" || claims.Role != "student" || claims.Name != "Student One" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{
		AccountID: "acc-1",
		Username:  "stu1",
		Role:      "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := ParseToken("secret", token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTamperedToken(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		AccountID: "acc-1",
		Username:  "stu1",
		Role:      "student",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if _, err := ParseToken("other-secret", token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}
	if _, err := ParseToken("secret", token+"x"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for mangled token, got %v", err)
	}
	if _, err := ParseToken("secret", "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}
