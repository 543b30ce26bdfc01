package delivery

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/powerboard/pkg/event"
	"github.com/nao1215/powerboard/pkg/httpclient"
	"github.com/nao1215/powerboard/pkg/middleware"
)

// PublishPath はゲートウェイの内部配信エンドポイント。
const PublishPath = "/publish"

// ErrClosed はClose済みのクライアントに対する操作を表す。
var ErrClosed = errors.New("delivery: クライアントは停止済みです")

// デフォルト値
const (
	DefaultTimeout   = 5 * time.Second
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Config は配信クライアントの設定。
type Config struct {
	// GatewayURL はゲートウェイのベースURL。
	GatewayURL string
	// Secret は内部APIの共有シークレット。
	Secret string
	// Timeout は1回の配信呼び出しのタイムアウト。
	Timeout time.Duration
	// Workers は配信を行うgoroutine数。
	Workers int
	// QueueSize は配信待ちキューの容量。
	QueueSize int
}

// request は配信待ちの1件。
type request struct {
	recipient string
	payload   event.Payload
}

// Client はゲートウェイへの非同期配信クライアント。
type Client struct {
	http    *httpclient.Client
	timeout time.Duration
	logger  zerolog.Logger

	queue chan request
	wg    sync.WaitGroup

	// mu はclosedとqueueのclose操作を保護する。
	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// New は配信クライアントを生成し、ワーカーを起動する。
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	c := &Client{
		http: httpclient.New(cfg.GatewayURL,
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithHeader(middleware.HeaderInternalSecret, cfg.Secret),
		),
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "DeliveryClient").Logger(),
		queue:   make(chan request, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		c.wg.Add(1)
		go c.runWorker()
	}
	return c
}

// Deliver は受信者への配信をキューに積んで即座に戻る。
// キューが満杯、またはClose済みの場合は配信を破棄してログに残す。
func (c *Client) Deliver(recipient string, payload event.Payload) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.dropped.Add(1)
		c.logger.Warn().Str("recipient", recipient).Err(ErrClosed).Msg("配信を破棄しました")
		return
	}

	select {
	case c.queue <- request{recipient: recipient, payload: payload}:
	default:
		c.dropped.Add(1)
		c.logger.Warn().Str("recipient", recipient).Msg("配信キューが満杯のため配信を破棄しました")
	}
}

// Close は新規の配信受付を止め、キューに残った配信を処理し終えるまで待つ。
// ctxが先に終了した場合は待機を打ち切りctx.Err()を返す。
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped はキュー満杯や停止により破棄された配信の件数を返す。
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// Failed はゲートウェイ呼び出しに失敗した配信の件数を返す。
func (c *Client) Failed() int64 {
	return c.failed.Load()
}

// runWorker はキューが閉じられるまで配信を1件ずつ処理する。
func (c *Client) runWorker() {
	defer c.wg.Done()
	for req := range c.queue {
		c.send(req)
	}
}

// send はゲートウェイに1件の配信を送る。失敗は記録して握りつぶす。
func (c *Client) send(req request) {
	defer func() {
		if r := recover(); r != nil {
			c.failed.Add(1)
			c.logger.Error().Str("recipient", req.recipient).Interface("panic", r).Msg("配信中にパニックが発生しました")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	path := PublishPath + "?uid=" + url.QueryEscape(req.recipient)
	if err := c.http.PostJSON(ctx, path, req.payload, nil); err != nil {
		c.failed.Add(1)
		c.logger.Warn().Err(err).Str("recipient", req.recipient).Msg("ゲートウェイへの配信に失敗しました")
		return
	}
	c.logger.Debug().Str("recipient", req.recipient).Msg("ゲートウェイに配信を依頼しました")
}
