package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"espcam/internal/config"
	"espcam/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load(os.Getenv("ESPCAM_CONFIG"))
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)

	// シグナルで停止する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// サーバーを起動
	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}
