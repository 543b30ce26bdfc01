// スケジューラサービスのエントリポイント。
// 期限切れタスクと期限間近プロジェクトを一定間隔で走査して通知を作成する。
// REDIS_URLを設定すると、複数のスケジューラが同じジョブを同時に実行しない。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/powerboard/internal/config"
	"github.com/nao1215/powerboard/internal/database"
	"github.com/nao1215/powerboard/internal/notification"
	"github.com/nao1215/powerboard/internal/scheduler"
	"github.com/nao1215/powerboard/internal/store"
	"github.com/nao1215/powerboard/pkg/delivery"
	"github.com/nao1215/powerboard/pkg/middleware"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "scheduler").Logger()
	log.Logger = logger

	cfg := config.Load("8005")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("データベースの初期化に失敗")
	}
	defer db.Close()

	deliverer := delivery.New(delivery.Config{
		GatewayURL: cfg.GatewayURL,
		Secret:     cfg.GatewayInternalSecret,
		Timeout:    cfg.DeliveryTimeout,
		Workers:    cfg.DeliveryWorkers,
		QueueSize:  cfg.DeliveryQueueSize,
	}, logger)

	domain := store.NewDomainStore(db)
	notifier := notification.NewNotifier(store.NewNotificationStore(db), domain, deliverer,
		logger.With().Str("component", "Notifier").Logger())
	jobs := scheduler.NewJobs(domain, notifier, cfg.DueSoonWindow, logger.With().Str("component", "Jobs").Logger())

	var opts []scheduler.Option
	if cfg.RedisURL != "" {
		client, err := scheduler.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Redisの初期化に失敗")
		}
		defer client.Close()
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(client, logger.With().Str("component", "RedisLocker").Logger())))
		logger.Info().Msg("Redisのジョブリースを有効にしました")
	}

	sched := scheduler.New(logger.With().Str("component", "Scheduler").Logger(), opts...)
	jobs.Schedule(sched, cfg.OverdueScanInterval, cfg.DueSoonScanInterval)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "scheduler"})
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	sched.Start(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("スケジューラサービスを起動します")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("スケジューラサービスの起動に失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("スケジューラサービスを停止します")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTPサーバーの停止に失敗")
		}
		return deliverer.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("スケジューラサービスが異常終了しました")
	}
}
