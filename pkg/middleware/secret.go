package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderInternalSecret はサービス間の内部APIで共有シークレットを運ぶヘッダー。
const HeaderInternalSecret = "X-Internal-Secret"

// InternalSecret は共有シークレットが一致しないリクエストを403で拒否するGinミドルウェアを返す。
func InternalSecret(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(HeaderInternalSecret))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Bad secret"})
			return
		}
		c.Next()
	}
}
