package server

import (
	"context"
	"fmt"
	"log/slog"

	"espcam/internal/camera"
	"espcam/internal/config"
	"espcam/internal/discovery"
	"espcam/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// Run はカメラを開き、制御用と配信用のサーバーを ctx が終わるまで動かす
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	dc := cfg.DriverConfig()
	dc.Logger = logger
	driver, err := camera.NewDriver(camera.DriverType(cfg.Camera.Driver), dc)
	if err != nil {
		return fmt.Errorf("カメラの初期化に失敗: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("カメラのクローズに失敗", "error", err)
		}
	}()

	info := driver.Info()
	logger.Info("カメラを初期化しました",
		"driver", cfg.Camera.Driver,
		"board", info.Board,
		"model", info.Model,
		"pixformat", info.PixFormat.String(),
		"framesize", driver.Status().Framesize,
	)

	dinfo := discovery.Info{
		Board:      info.Board,
		Model:      info.Model,
		HostName:   cfg.Camera.HostName,
		Port:       cfg.Server.Port,
		StreamPort: cfg.StreamPort(),
		Framesize:  driver.Status().Framesize,
		PixFormat:  int(info.PixFormat),
	}

	var advertiser *discovery.Advertiser
	instance := discovery.InstanceName(dinfo, nil)
	opts := []HandlerOption{WithLogger(logger)}

	if cfg.MDNS.Enabled {
		advertiser = discovery.New(dinfo, discovery.Options{
			QueryInterval: cfg.MDNS.QueryInterval,
			QueryTimeout:  cfg.MDNS.QueryTimeout,
			MaxResults:    cfg.MDNS.MaxResults,
		}, logger)
		instance = advertiser.Instance()
		logger.Info("mDNSのホスト名", "hostname", advertiser.Host()+".local")
		opts = append(opts, WithAnnouncer(advertiser))
	}

	publisher := telemetry.New(telemetry.Options{
		Broker:   cfg.MQTT.Broker,
		Prefix:   cfg.MQTT.Prefix,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Interval: cfg.MQTT.Interval,
	}, instance, func() any { return StatusResponse(driver) }, logger)
	opts = append(opts, WithNotifier(publisher))

	h, err := NewHandler(cfg, driver, opts...)
	if err != nil {
		return fmt.Errorf("ハンドラーの作成に失敗: %w", err)
	}

	static, err := StaticFS(cfg.Server.WebRoot)
	if err != nil {
		return err
	}

	control := New("control", cfg.ServerAddress(), NewControlEngine(h, static),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger)
	// 配信は長時間続くので書き込みタイムアウトを設けない
	streamer := New("stream", cfg.StreamAddress(), NewStreamEngine(h),
		cfg.Server.ReadTimeout, 0, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return control.Start(ctx) })
	g.Go(func() error { return streamer.Start(ctx) })

	if advertiser != nil {
		if err := advertiser.Start(); err != nil {
			logger.Warn("mDNSの登録に失敗", "error", err)
		} else {
			defer advertiser.Shutdown()
		}
		g.Go(func() error {
			if err := advertiser.Run(ctx); err != nil {
				logger.Warn("mDNSの問い合わせを停止", "error", err)
			}
			return nil
		})
	}

	if publisher.Enabled() {
		g.Go(func() error { return publisher.Run(ctx) })
	}

	logger.Info("espcam を起動しました",
		"instance", instance,
		"control", cfg.ServerAddress(),
		"stream", cfg.StreamAddress(),
	)
	return g.Wait()
}
