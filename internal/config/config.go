// Package config は各サービス共通の環境変数設定を読み込む。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config は通知パイプラインの全プロセスが参照する設定値。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DatabaseURL は通知ストアの接続先。postgres:// で始まる場合はPostgreSQLを使う。
	DatabaseURL string
	// GatewayURL はリアルタイムゲートウェイのベースURL。
	GatewayURL string
	// GatewayInternalSecret はサービス間の内部呼び出しに使う共有シークレット。
	GatewayInternalSecret string
	// JWTSecret はハンドシェイクとAPIで使うJWTの署名鍵。
	// 空の場合、ゲートウェイは署名を検証せずにクレームを読む。
	JWTSecret string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// RedisURL はスケジューラのジョブロックに使うRedis。空なら無効。
	RedisURL string

	// OverdueScanInterval は期限切れタスク走査の間隔。
	OverdueScanInterval time.Duration
	// DueSoonScanInterval は期限間近プロジェクト走査の間隔。
	DueSoonScanInterval time.Duration
	// DueSoonWindow は「期限間近」とみなす前方の時間幅。
	DueSoonWindow time.Duration

	// DeliveryTimeout はゲートウェイへの配信呼び出しのタイムアウト。
	DeliveryTimeout time.Duration
	// DeliveryWorkers は配信ワーカーのgoroutine数。
	DeliveryWorkers int
	// DeliveryQueueSize は配信キューの容量。満杯時の配信は破棄される。
	DeliveryQueueSize int
	// SendTimeout はWebSocket 1接続あたりの書き込みタイムアウト。
	SendTimeout time.Duration
}

// デフォルト値
const (
	DefaultDatabaseURL         = "file:/data/powerboard.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	DefaultGatewayURL          = "http://localhost:9000"
	DefaultInternalSecret      = "dev-secret"
	DefaultOverdueScanInterval = 30 * time.Minute
	DefaultDueSoonScanInterval = 30 * time.Second
	DefaultDueSoonWindow       = 72 * time.Hour
	DefaultDeliveryTimeout     = 5 * time.Second
	DefaultDeliveryWorkers     = 4
	DefaultDeliveryQueueSize   = 256
	DefaultSendTimeout         = 5 * time.Second
)

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://localhost:4174",
}

// Load は.envファイルと環境変数から設定を読み込む。
// defaultPort はPORTが未設定の場合に使うポート番号。
func Load(defaultPort string) *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".envファイルが見つからないため環境変数のみを使用します")
	}

	return &Config{
		Port:                  getEnvOr("PORT", defaultPort),
		DatabaseURL:           getEnvOr("DATABASE_URL", DefaultDatabaseURL),
		GatewayURL:            strings.TrimRight(getEnvOr("GATEWAY_URL", DefaultGatewayURL), "/"),
		GatewayInternalSecret: getEnvOr("GATEWAY_INTERNAL_SECRET", DefaultInternalSecret),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		AllowedOrigins:        getListOr("ALLOWED_ORIGINS", defaultOrigins),
		RedisURL:              os.Getenv("REDIS_URL"),

		OverdueScanInterval: getDurationOr("OVERDUE_SCAN_INTERVAL", DefaultOverdueScanInterval),
		DueSoonScanInterval: getDurationOr("DUE_SOON_SCAN_INTERVAL", DefaultDueSoonScanInterval),
		DueSoonWindow:       getDurationOr("DUE_SOON_WINDOW", DefaultDueSoonWindow),

		DeliveryTimeout:   getDurationOr("DELIVERY_TIMEOUT", DefaultDeliveryTimeout),
		DeliveryWorkers:   getIntOr("DELIVERY_WORKERS", DefaultDeliveryWorkers),
		DeliveryQueueSize: getIntOr("DELIVERY_QUEUE_SIZE", DefaultDeliveryQueueSize),
		SendTimeout:       getDurationOr("SEND_TIMEOUT", DefaultSendTimeout),
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getDurationOr は環境変数をtime.Durationとして解釈する。
// 未設定や不正値、0以下の値はデフォルト値になる。
func getDurationOr(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("不正な期間指定のためデフォルト値を使用します")
		return defaultValue
	}
	return d
}

// getIntOr は環境変数を正の整数として解釈する。
func getIntOr(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("不正な整数値のためデフォルト値を使用します")
		return defaultValue
	}
	return n
}

// getListOr はカンマ区切りの環境変数をスライスとして返す。
func getListOr(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
