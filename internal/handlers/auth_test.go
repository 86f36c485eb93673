package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/mindhaven/peerlink/internal/middleware"
)

const testSecret = "test-secret"

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/auth/login", Login(testSecret))
	router.GET("/api/whoami", middleware.JWTAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": c.GetString(middleware.IdentityKey)})
	})
	return router
}

func TestLoginMintsUsableToken(t *testing.T) {
	router := newAuthRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"identity":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "alice", resp.Identity)
	require.NotEmpty(t, resp.Token)

	// The minted token authenticates API requests.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "alice")

	// The token also resolves the websocket handshake identity.
	identity, err := middleware.ParseIdentity(resp.Token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "alice", identity)
}

func TestLoginRejectsMissingIdentity(t *testing.T) {
	router := newAuthRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJWTAuthRejectsBadTokens(t *testing.T) {
	router := newAuthRouter()

	for name, header := range map[string]string{
		"missing": "",
		"format":  "Token abc",
		"invalid": "Bearer not-a-token",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		require.Equalf(t, http.StatusUnauthorized, w.Code, "case %s", name)
	}
}
