package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/logger"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authRouter(t *testing.T) (*gin.Engine, *uuid.UUID, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var gotUser, gotWs uuid.UUID
	router := gin.New()
	am := NewAuthMiddleware(logger.NewNop(), testSecret)
	router.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
		u, w, ok := Identity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		gotUser, gotWs = u, w
		c.Status(http.StatusOK)
	})
	return router, &gotUser, &gotWs
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	router, gotUser, gotWs := authRouter(t)

	userID := uuid.New()
	workspaceID := uuid.New()
	token := signToken(t, jwt.MapClaims{
		"user_id":      userID.String(),
		"workspace_id": workspaceID.String(),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if *gotUser != userID || *gotWs != workspaceID {
		t.Fatalf("identity not propagated")
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	router, _, _ := authRouter(t)

	token := signToken(t, jwt.MapClaims{
		"user_id":      uuid.NewString(),
		"workspace_id": uuid.NewString(),
	})

	// EventSource clients can't set headers, so the token rides the
	// query string.
	req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	router, _, _ := authRouter(t)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}

	// Valid signature but missing workspace claim.
	token := signToken(t, jwt.MapClaims{"user_id": uuid.NewString()})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing claim: expected 403, got %d", rec.Code)
	}

	// Wrong secret.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      uuid.NewString(),
		"workspace_id": uuid.NewString(),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", rec.Code)
	}
}
