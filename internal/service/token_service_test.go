package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
)

func tokenTestConfig(expiry time.Duration) *config.Config {
	return &config.Config{
		JWTSecret: "test-secret",
		JWTExpiry: expiry,
	}
}

func TestAttemptTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(tokenTestConfig(time.Hour))
	attemptID := uuid.New()

	signed, err := svc.GenerateAttemptToken("stu-42", attemptID)
	if err != nil {
		t.Fatalf("GenerateAttemptToken: %v", err)
	}

	claims, err := svc.ValidateToken(signed)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.StudentID != "stu-42" {
		t.Errorf("StudentID = %q", claims.StudentID)
	}
	if claims.AttemptID != attemptID.String() {
		t.Errorf("AttemptID = %q, want %s", claims.AttemptID, attemptID)
	}
	if claims.Subject != "stu-42" {
		t.Errorf("Subject = %q", claims.Subject)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	signed, err := NewTokenService(tokenTestConfig(time.Hour)).
		GenerateAttemptToken("stu-1", uuid.New())
	if err != nil {
		t.Fatalf("GenerateAttemptToken: %v", err)
	}

	other := NewTokenService(&config.Config{JWTSecret: "different", JWTExpiry: time.Hour})
	if _, err := other.ValidateToken(signed); err == nil {
		t.Fatal("token signed with another secret validated")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService(tokenTestConfig(-time.Minute))
	signed, err := svc.GenerateAttemptToken("stu-1", uuid.New())
	if err != nil {
		t.Fatalf("GenerateAttemptToken: %v", err)
	}
	if _, err := svc.ValidateToken(signed); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewTokenService(tokenTestConfig(time.Hour))
	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Fatal("garbage token validated")
	}
}
