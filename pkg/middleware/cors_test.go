package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newCORSRouter(origins []string, called *bool) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins))
	handler := func(c *gin.Context) {
		if called != nil {
			*called = true
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/api/v1/notifications", handler)
	router.OPTIONS("/api/v1/notifications", handler)
	return router
}

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("許可されたオリジンに資格情報付きのCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newCORSRouter([]string{"http://localhost:3000", "https://example.com"}, &called)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, called)
		assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "GET, POST, PUT, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Authorization, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("許可されていないオリジンやOriginなしではCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		for _, origin := range []string{"https://evil.com", ""} {
			router := newCORSRouter([]string{"http://localhost:3000"}, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
			if origin != "" {
				req.Header.Set("Origin", origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code, "origin=%q", origin)
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), "origin=%q", origin)
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"), "origin=%q", origin)
		}
	})

	t.Run("OPTIONSリクエストは204で中断されハンドラーが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newCORSRouter([]string{"http://localhost:3000"}, &called)

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/notifications", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.False(t, called)
	})
}

func TestAllowsOrigin(t *testing.T) {
	t.Parallel()

	origins := []string{"http://localhost:3000"}
	assert.True(t, AllowsOrigin(origins, "http://localhost:3000"))
	assert.True(t, AllowsOrigin(origins, ""), "Originなしは許可されること")
	assert.False(t, AllowsOrigin(origins, "https://evil.com"))
	assert.False(t, AllowsOrigin(nil, "http://localhost:3000"))
}
