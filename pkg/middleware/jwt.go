package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken はトークンが提示されていないことを表す。
	ErrMissingToken = errors.New("トークンがありません")
	// ErrInvalidToken はトークンを解釈できない、または識別子クレームがないことを表す。
	ErrInvalidToken = errors.New("トークンが無効です")
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 受信者識別子は sub を優先し、無ければ user_id を使う。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は旧形式のトークンが持つユーザー識別子。
	UserID string `json:"user_id,omitempty"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
}

// contextKeyAuthID はGinコンテキストに受信者識別子を格納するキー。
const contextKeyAuthID = "auth_id"

// GenerateJWT は受信者識別子からHS256署名のJWTトークンを生成する。
// 開発用のトークン発行とテストで使用する。
func GenerateJWT(secret, subject, email string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "powerboard",
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseSubject はトークンから受信者識別子を取り出す。
// secretが空でなければHS256署名と有効期限を検証する。
// secretが空の場合は署名を検証せずにクレームだけを読む。この場合、
// 正規に発行されたトークンしか届かないことを前提とした信頼境界になる。
func ParseSubject(tokenString, secret string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	claims := &JWTClaims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if claims.Subject != "" {
		return claims.Subject, nil
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	return "", fmt.Errorf("%w: 識別子クレームがありません", ErrInvalidToken)
}

// BearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// JWTAuth はAuthorizationヘッダーのJWTを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに受信者識別子を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, ok := BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		authID, err := ParseSubject(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set(contextKeyAuthID, authID)
		c.Next()
	}
}

// GetAuthID はGinコンテキストから受信者識別子を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetAuthID(c *gin.Context) string {
	v, _ := c.Get(contextKeyAuthID)
	if id, ok := v.(string); ok {
		return id
	}
	return ""
}

// SetAuthID はGinコンテキストに受信者識別子を設定する。テスト用の認証差し替えに使う。
func SetAuthID(c *gin.Context, authID string) {
	c.Set(contextKeyAuthID, authID)
}
