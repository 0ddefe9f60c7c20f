package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupMiddlewareTest(t *testing.T) (*Manager, string, *User) {
	t.Helper()
	mgr := newTestManager()
	user, err := mgr.Signup(context.Background(), "agent@example.com", "password123")
	require.NoError(t, err)
	token, _, err := mgr.Login(context.Background(), "agent@example.com", "password123")
	require.NoError(t, err)
	return mgr, token.AccessToken, user
}

// --- Middleware() ---

func TestMiddleware_ValidToken_SetsContext(t *testing.T) {
	mgr, token, user := setupMiddlewareTest(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)

	Middleware(mgr)(c)

	assert.Equal(t, user.ID, CurrentUserID(c))
	claims, ok := GetClaims(c)
	require.True(t, ok)
	assert.Equal(t, "agent@example.com", claims.Subject)
	assert.True(t, IsAuthenticated(c))
}

func TestMiddleware_InvalidToken_DoesNotAbort(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)
	c.Request.Header.Set("Authorization", "Bearer not.a.jwt")

	Middleware(mgr)(c)

	assert.False(t, c.IsAborted())
	assert.False(t, IsAuthenticated(c))
	assert.Empty(t, CurrentUserID(c))
}

func TestMiddleware_NoHeader(t *testing.T) {
	mgr, _, _ := setupMiddlewareTest(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)

	Middleware(mgr)(c)

	assert.False(t, c.IsAborted())
	_, ok := GetClaims(c)
	assert.False(t, ok)
}

// --- RequireAuth() ---

func TestRequireAuth_Unauthenticated(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/test", nil)

	RequireAuth()(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestRequireAuth_Authenticated(t *testing.T) {
	mgr, token, _ := setupMiddlewareTest(t)

	r := gin.New()
	r.Use(Middleware(mgr))
	r.GET("/private", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": CurrentUserID(c)})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Handlers ---

func setupHandlerRouter(mgr *Manager) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(mgr))
	h := NewHandler(mgr)
	group := r.Group("/auth")
	h.RegisterRoutes(group)
	protected := r.Group("/auth")
	protected.Use(RequireAuth())
	h.RegisterProtectedRoutes(protected)
	return r
}

func doJSON(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_SignupLoginMe(t *testing.T) {
	mgr := newTestManager()
	r := setupHandlerRouter(mgr)

	w := doJSON(r, "POST", "/auth/signup", `{"email":"ivan@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var signup map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signup))
	assert.Equal(t, "User created successfully", signup["message"])
	assert.NotEmpty(t, signup["user_id"])

	w = doJSON(r, "POST", "/auth/signup", `{"email":"ivan@example.com","password":"password123"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Email already registered")

	w = doJSON(r, "POST", "/auth/login", `{"email":"ivan@example.com","password":"wrongpassword"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	w = doJSON(r, "POST", "/auth/login", `{"email":"ivan@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var token Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.Equal(t, "bearer", token.TokenType)

	w = doJSON(r, "GET", "/auth/me", "", token.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), signup["user_id"])
	assert.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, "GET", "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_SignupValidation(t *testing.T) {
	r := setupHandlerRouter(newTestManager())

	w := doJSON(r, "POST", "/auth/signup", `{"email":"x@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "POST", "/auth/signup", `{"email":"nope","password":"password123"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_email")

	w = doJSON(r, "POST", "/auth/signup", `{"email":"x@example.com","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "weak_password")
}

func TestHandler_RejectsOverlongPassword(t *testing.T) {
	r := setupHandlerRouter(newTestManager())

	long := strings.Repeat("p", 73)
	w := doJSON(r, "POST", "/auth/signup", `{"email":"x@example.com","password":"`+long+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")

	w = doJSON(r, "POST", "/auth/login", `{"email":"x@example.com","password":"`+long+`"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "POST", "/auth/signup", `{"email":"   ","password":"password123"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
}
