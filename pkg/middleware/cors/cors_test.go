package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newCORSRouter(origins []string, maxAge time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins, maxAge))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	router := newCORSRouter([]string{"https://campus.example.edu"}, 5*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://campus.example.edu")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "https://campus.example.edu", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "300", resp.Header().Get("Access-Control-Max-Age"))
}

func TestCORSIgnoresUnlistedOrigin(t *testing.T) {
	router := newCORSRouter([]string{"https://campus.example.edu"}, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	router := newCORSRouter(nil, 0)

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "https://anywhere.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", resp.Header().Get("Access-Control-Max-Age"))
}
