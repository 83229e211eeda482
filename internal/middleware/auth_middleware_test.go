package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func serve(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, domain.Scope, bool) {
	t.Helper()
	logger.SetOutput(io.Discard)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var (
		scope  domain.Scope
		called bool
	)
	h := mw(func(c echo.Context) error {
		called = true
		scope, _ = ScopeFrom(c)
		return c.NoContent(http.StatusNoContent)
	})
	require.NoError(t, h(c))
	return rec, scope, called
}

func token(t *testing.T, role string, branch uint, ttl time.Duration) string {
	t.Helper()
	tok, err := utils.GenerateJWT(testSecret, "42", role, branch, ttl)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware_BranchScope(t *testing.T) {
	rec, scope, called := serve(t, AuthMiddleware(testSecret), token(t, "branch", 3, time.Hour))

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.Scope{UserID: "42", Role: domain.RoleBranch, BranchID: 3}, scope)
}

func TestAuthMiddleware_Admin(t *testing.T) {
	_, scope, called := serve(t, AuthMiddleware(testSecret), token(t, domain.RoleAdmin, 0, time.Hour))

	assert.True(t, called)
	assert.True(t, scope.CanAccessBranch(99))
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", token(t, domain.RoleAdmin, 0, -time.Minute), http.StatusUnauthorized},
		{"branch without id", token(t, domain.RoleBranch, 0, time.Hour), http.StatusForbidden},
		{"unknown role", token(t, "GUEST", 1, time.Hour), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, called := serve(t, AuthMiddleware(testSecret), tt.header)
			assert.False(t, called)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	tok, err := utils.GenerateJWT("other-secret", "1", domain.RoleAdmin, 0, time.Hour)
	require.NoError(t, err)

	rec, _, called := serve(t, AuthMiddleware(testSecret), "Bearer "+tok)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkerAuth(t *testing.T) {
	rec, scope, called := serve(t, WorkerAuth("worker-secret"), "Bearer worker-secret")
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.AdminScope(), scope)

	for _, header := range []string{"", "Bearer wrong", "worker-secret"} {
		rec, _, called := serve(t, WorkerAuth("worker-secret"), header)
		assert.False(t, called, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}

	_, _, called = serve(t, WorkerAuth(""), "Bearer ")
	assert.False(t, called)
}

func TestAdminOnly(t *testing.T) {
	chain := func(next echo.HandlerFunc) echo.HandlerFunc {
		return AuthMiddleware(testSecret)(AdminOnly()(next))
	}

	rec, _, called := serve(t, chain, token(t, domain.RoleBranch, 2, time.Hour))
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, _, called = serve(t, chain, token(t, domain.RoleAdmin, 0, time.Hour))
	assert.True(t, called)
}

func TestTraceID(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := TraceID()(func(c echo.Context) error {
		seen = logger.TraceIDFromContext(c.Request().Context())
		return nil
	})
	require.NoError(t, h(c))

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, h(c))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestErrorHandler(t *testing.T) {
	logger.SetOutput(io.Discard)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(echo.NewHTTPError(http.StatusNotFound, "route not found"), c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "route not found")

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	ErrorHandler(errors.New("boom"), c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}
