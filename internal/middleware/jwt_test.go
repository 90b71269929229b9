package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/acetosyn/Emis-student-exam2025/internal/config"
	"github.com/acetosyn/Emis-student-exam2025/internal/service"
)

func attemptRequest(t *testing.T, tokens *service.TokenService, token, attemptID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+attemptID+"/state", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)
	c.Params = gin.Params{{Key: "attempt_id", Value: attemptID}}

	RequireAttemptJWT(tokens)(c)
	return w
}

func errCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Error.Code
}

func TestRequireAttemptJWTAcceptsMatchingToken(t *testing.T) {
	tokens := service.NewTokenService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour})
	attemptID := uuid.New()
	token, err := tokens.GenerateAttemptToken("stu_1", attemptID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	w := attemptRequest(t, tokens, token, attemptID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestRequireAttemptJWTReportsExpiry(t *testing.T) {
	tokens := service.NewTokenService(&config.Config{JWTSecret: "secret", JWTExpiry: -time.Minute})
	attemptID := uuid.New()
	token, err := tokens.GenerateAttemptToken("stu_1", attemptID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	w := attemptRequest(t, tokens, token, attemptID.String())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if code := errCodeOf(t, w); code != "TOKEN_EXPIRED" {
		t.Errorf("error code = %s, want TOKEN_EXPIRED", code)
	}
}

func TestRequireAttemptJWTRejectsForgedToken(t *testing.T) {
	tokens := service.NewTokenService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour})
	forged := service.NewTokenService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
	attemptID := uuid.New()
	token, err := forged.GenerateAttemptToken("stu_1", attemptID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	w := attemptRequest(t, tokens, token, attemptID.String())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if code := errCodeOf(t, w); code != "TOKEN_INVALID" {
		t.Errorf("error code = %s, want TOKEN_INVALID", code)
	}
}

func TestRequireAttemptJWTPinsAttemptID(t *testing.T) {
	tokens := service.NewTokenService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour})
	token, err := tokens.GenerateAttemptToken("stu_1", uuid.New())
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	w := attemptRequest(t, tokens, token, uuid.NewString())
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}
