// リアルタイムゲートウェイのエントリポイント。
// クライアントのWebSocket接続を受信者ごとに保持し、
// 各サービスから /publish で届いた通知を受信者の全接続へ送る。
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
	"github.com/nao1215/powerboard/internal/gateway"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "gateway").Logger()
	log.Logger = logger

	cfg := config.Load("9000")
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRETが未設定のため、ハンドシェイクのトークン署名を検証しません")
	}

	server := gateway.NewServer(cfg, logger.With().Str("component", "Gateway").Logger())
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("Gatewayサービスを起動します")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("Gatewayサービスの起動に失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Gatewayサービスを停止します")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTPサーバーの停止に失敗")
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("Gatewayサービスが異常終了しました")
	}
}
