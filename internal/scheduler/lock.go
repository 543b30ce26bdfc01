package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// lockKeyPrefix はジョブリースのRedisキー接頭辞。
const lockKeyPrefix = "scheduler:lock:"

// releaseScript は自分が保持しているリースだけを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NX PXでジョブのリースを取るLocker。
type RedisLocker struct {
	client *redis.Client
	owner  string
	logger zerolog.Logger
}

// NewRedisLocker は新しいRedisLockerを生成する。ownerはこのプロセス固有の値になる。
func NewRedisLocker(client *redis.Client, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		owner:  uuid.NewString(),
		logger: logger,
	}
}

// NewRedisClient はURLからRedisクライアントを生成して疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの疎通確認に失敗: %w", err)
	}
	return client, nil
}

// Acquire はジョブのリースをttlの期間で取る。既に他の保持者がいればok=falseを返す。
// リースはttl後に自然に失効する。releaseは自分が保持している間だけ削除する。
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := lockKeyPrefix + name
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("リース %s の取得に失敗: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// ジョブのctxがキャンセルされていても解放できるよう独立したctxを使う
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("リースの解放に失敗しました")
		}
	}
	return release, true, nil
}
