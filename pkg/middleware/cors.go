package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ブラウザから通知APIを呼ぶときに許可するメソッドとヘッダー。
const (
	corsAllowMethods = "GET, POST, PUT, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
	corsMaxAge       = "86400"
)

// originSet は許可オリジンの集合。
type originSet map[string]struct{}

func newOriginSet(origins []string) originSet {
	set := make(originSet, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return set
}

func (s originSet) has(origin string) bool {
	_, ok := s[origin]
	return ok
}

// CORS は許可オリジンからの資格情報付きリクエストに応答ヘッダーを付ける。
// 一覧・既読APIはAuthorizationヘッダーを使うため、プリフライトはここで204を返して終える。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := newOriginSet(allowedOrigins)

	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		if origin := c.GetHeader("Origin"); allowed.has(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", corsMaxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AllowsOrigin はWebSocketハンドシェイクのOriginを検査する。
// Originを送らないクライアント（同一オリジンやCLI）は許可する。
func AllowsOrigin(allowedOrigins []string, origin string) bool {
	return origin == "" || newOriginSet(allowedOrigins).has(origin)
}
