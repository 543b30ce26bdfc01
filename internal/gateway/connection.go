package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// CloseUnauthorized はハンドシェイクのトークンが無い、または解釈できない場合のクローズコード。
const CloseUnauthorized = 4401

// socket はConnectionが使うWebSocketの操作。*websocket.Conn が満たす。
type socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection は1本のライブ接続。書き込みは接続ごとに直列化される。
type Connection struct {
	id          string
	recipient   string
	sock        socket
	sendTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newConnection(recipient string, sock socket, sendTimeout time.Duration) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		recipient:   recipient,
		sock:        sock,
		sendTimeout: sendTimeout,
	}
}

// ID は接続の識別子を返す。
func (c *Connection) ID() string { return c.id }

// Recipient は接続の受信者識別子を返す。
func (c *Connection) Recipient() string { return c.recipient }

// Send はテキストフレームを1つ書き込む。書き込みはsendTimeoutで打ち切られる。
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("接続 %s は閉じられています", c.id)
	}
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
		return fmt.Errorf("書き込み期限の設定に失敗: %w", err)
	}
	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("メッセージの送信に失敗: %w", err)
	}
	return nil
}

// CloseWith はクローズフレームを送ってから接続を閉じる。2回目以降は何もしない。
func (c *Connection) CloseWith(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.sendTimeout))
	return c.sock.Close()
}

// Close はクローズフレームを送らずに接続を閉じる。
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.sock.Close()
}
