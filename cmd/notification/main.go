// 通知サービスのエントリポイント。
// 通知の一覧・既読APIと、各サービスから業務イベントを受け取る内部APIを提供する。
// 作成した通知はリアルタイムゲートウェイへ非同期に配信する。
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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/powerboard/internal/config"
	"github.com/nao1215/powerboard/internal/database"
	"github.com/nao1215/powerboard/internal/notification"
	"github.com/nao1215/powerboard/pkg/delivery"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notification").Logger()
	log.Logger = logger

	cfg := config.Load("8004")

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

	server := notification.NewServer(cfg, db, deliverer, logger.With().Str("component", "NotificationServer").Logger())
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("通知サービスを起動します")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("通知サービスの起動に失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("通知サービスを停止します")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTPサーバーの停止に失敗")
		}
		// 受け付け済みの配信を送り切ってから終了する
		return deliverer.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("通知サービスが異常終了しました")
	}
}
