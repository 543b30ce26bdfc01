package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nao1215/powerboard/internal/config"
	"github.com/nao1215/powerboard/pkg/middleware"
)

// maxPublishBody は /publish で受け付けるペイロードの上限。
const maxPublishBody = 64 << 10

// Server はリアルタイムゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// registry は受信者ごとのライブ接続。
	registry *Registry
	upgrader websocket.Upgrader
	// jwtSecret はハンドシェイクのトークン検証鍵。空なら署名を検証しない。
	jwtSecret   string
	sendTimeout time.Duration
	logger      zerolog.Logger

	// sendMu はdrainingとsends.Addを保護し、Shutdownの待機開始後にAddが走らないようにする。
	sendMu   sync.RWMutex
	draining bool
	// sends は実行中のブロードキャスト送信。
	sends sync.WaitGroup
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(cfg *config.Config, logger zerolog.Logger) *Server {
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = config.DefaultSendTimeout
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:   router,
		registry: NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.AllowsOrigin(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
		jwtSecret:   cfg.JWTSecret,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
	s.setupRoutes(cfg.GatewayInternalSecret)

	return s
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry はサーバーが保持する接続のRegistryを返す。
func (s *Server) Registry() *Registry {
	return s.registry
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes(internalSecret string) {
	// クライアントのWebSocket接続
	s.router.GET("/ws", s.handleWebSocket())

	// サービスからの配信依頼（内部API）
	s.router.POST("/publish", middleware.InternalSecret(internalSecret), s.handlePublish())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"service":    "gateway",
			"recipients": s.registry.Len(),
		})
	})
}

// handshakeToken はAuthorizationヘッダーのBearerトークンを優先し、
// 無ければ token クエリパラメータを返す。
func handshakeToken(r *http.Request) string {
	if token, ok := middleware.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}

// handleWebSocket はハンドシェイクを処理し、接続が閉じるまで登録し続けるハンドラ。
// トークンが無い、または解釈できない場合はアップグレード後に4401で閉じ、登録しない。
func (s *Server) handleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := handshakeToken(c.Request)

		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("WebSocketへのアップグレードに失敗")
			return
		}
		// 受信はクローズの検出だけに使う
		ws.SetReadLimit(512)

		if token == "" {
			s.reject(ws, "Missing token")
			return
		}
		recipient, err := middleware.ParseSubject(token, s.jwtSecret)
		if err != nil {
			s.logger.Debug().Err(err).Msg("ハンドシェイクのトークンを拒否しました")
			s.reject(ws, "Invalid token")
			return
		}

		conn := newConnection(recipient, ws, s.sendTimeout)
		if !s.registry.Register(conn) {
			_ = conn.CloseWith(websocket.CloseGoingAway, "server shutdown")
			return
		}
		s.logger.Info().
			Str("recipient", recipient).
			Str("connection_id", conn.ID()).
			Int("open", len(s.registry.Snapshot(recipient))).
			Msg("WebSocket接続を登録しました")

		defer func() {
			s.registry.Unregister(conn)
			_ = conn.Close()
			s.logger.Info().
				Str("recipient", recipient).
				Str("connection_id", conn.ID()).
				Msg("WebSocket接続を解除しました")
		}()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// reject はクローズフレーム4401を送って接続を閉じる。
func (s *Server) reject(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(CloseUnauthorized, reason)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.sendTimeout)); err != nil {
		s.logger.Debug().Err(err).Msg("クローズフレームの送信に失敗")
	}
	_ = ws.Close()
}

// handlePublish はuidの全接続へペイロードを送るよう受け付けるハンドラ。
// 送信の完了を待たずに202を返す。
func (s *Server) handlePublish() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipient := c.Query("uid")
		if recipient == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uid が必要です"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPublishBody+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ボディの読み込みに失敗しました"})
			return
		}
		if len(body) > maxPublishBody {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "ペイロードが大きすぎます"})
			return
		}

		payload, err := compactObject(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ペイロードはJSONオブジェクトである必要があります"})
			return
		}

		s.Broadcast(recipient, payload)
		c.JSON(http.StatusAccepted, gin.H{"detail": "queued"})
	}
}

// errNotObject はペイロードがJSONオブジェクトでないことを表す。
var errNotObject = errors.New("JSONオブジェクトではありません")

// compactObject はJSONオブジェクトであることを確認し、キー順を保ったまま空白を除く。
func compactObject(body []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Broadcast は呼び出し時点の受信者の全接続へpayloadを並行に送り、送信を開始した接続数を返す。
// 送信の完了は待たない。1つの接続の失敗は他の接続に影響せず、失敗した接続は閉じられる。
// Shutdown開始後は何も送らず0を返す。
func (s *Server) Broadcast(recipient string, payload []byte) int {
	s.sendMu.RLock()
	if s.draining {
		s.sendMu.RUnlock()
		return 0
	}
	conns := s.registry.Snapshot(recipient)
	s.sends.Add(len(conns))
	s.sendMu.RUnlock()

	for _, conn := range conns {
		go func(conn *Connection) {
			defer s.sends.Done()
			if err := conn.Send(payload); err != nil {
				s.logger.Warn().
					Err(err).
					Str("recipient", recipient).
					Str("connection_id", conn.ID()).
					Msg("接続への送信に失敗しました")
				s.registry.Unregister(conn)
				_ = conn.Close()
			}
		}(conn)
	}
	return len(conns)
}

// Shutdown は新しいブロードキャストを止め、全接続に1001のクローズフレームを送って
// Registryを破棄し、実行中の送信が終わるかctxが終了するまで待つ。
// 処理中の/publishと並行に呼んでもよい。
func (s *Server) Shutdown(ctx context.Context) error {
	s.sendMu.Lock()
	s.draining = true
	s.sendMu.Unlock()

	conns := s.registry.Close()
	for _, conn := range conns {
		_ = conn.CloseWith(websocket.CloseGoingAway, "server shutdown")
	}
	s.logger.Info().Int("connections", len(conns)).Msg("全WebSocket接続を閉じました")

	done := make(chan struct{})
	go func() {
		s.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
