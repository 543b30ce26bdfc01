package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// errInternal はパニック時に呼び出し元へ返す本文。
const errInternal = "内部サーバーエラーが発生しました"

// Recovery は通知API・ゲートウェイ・スケジューラのハンドラで起きたパニックを受け止める。
// 認証済みであれば受信者識別子もログに残す。
// 応答を書き始めた後（WebSocketへのアップグレード後など）は本文を書かずに中断だけ行う。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			ev := log.Error().
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Interface("panic", r)
			if authID := GetAuthID(c); authID != "" {
				ev = ev.Str("auth_id", authID)
			}
			ev.Msg("ハンドラのパニックから回復しました")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errInternal})
		}()
		c.Next()
	}
}
