package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"espcam/internal/camera"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Stream StreamConfig `yaml:"stream"`
	MDNS   MDNSConfig   `yaml:"mdns"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // 制御用ポート。ストリームは Port+1

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 制御用サーバーの書き込みタイムアウト

	WebRoot string `yaml:"web_root"` // 静的ファイルのディレクトリ。空なら埋め込みを使う
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver string `yaml:"driver"` // simulated または v4l2
	Device string `yaml:"device"` // デバイスパス (例: /dev/video0, auto)

	Board    string `yaml:"board"`     // ボード名
	Model    string `yaml:"model"`     // センサーモデル
	HostName string `yaml:"host_name"` // mDNSのインスタンス名。空ならボード名から生成
	XCLKMHz  int    `yaml:"xclk_mhz"`  // 入力クロック

	PixFormat string        `yaml:"pixformat"` // RGB565, YUV422, GRAYSCALE, JPEG, RGB888
	FrameSize int           `yaml:"framesize"` // 0 (96x96) - 13 (UXGA)
	Quality   int           `yaml:"quality"`   // 4 - 63 (小さいほど高画質)
	FBCount   int           `yaml:"fb_count"`  // フレームバッファ数
	FPS       int           `yaml:"fps"`       // フレームレート
	Timeout   time.Duration `yaml:"timeout"`   // フレーム待機タイムアウト
}

// StreamConfig はMJPEG配信の設定
type StreamConfig struct {
	Quality   int    `yaml:"quality"`   // RAWフレーム変換時のJPEG品質 (1-100)
	Framerate int    `yaml:"framerate"` // X-Framerate ヘッダの値
	Boundary  string `yaml:"boundary"`  // multipart の境界文字列
}

// MDNSConfig はmDNSの設定
type MDNSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	QueryInterval time.Duration `yaml:"query_interval"` // 他のカメラを探す間隔
	QueryTimeout  time.Duration `yaml:"query_timeout"`  // 1回の問い合わせ時間
	MaxResults    int           `yaml:"max_results"`    // 保持する結果の上限
}

// MQTTConfig はテレメトリ送信の設定
type MQTTConfig struct {
	Broker   string        `yaml:"broker"` // 例: tcp://localhost:1883。空なら無効
	Prefix   string        `yaml:"prefix"` // トピックの接頭辞
	ClientID string        `yaml:"client_id"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Interval time.Duration `yaml:"interval"` // 定期送信の間隔
}

// LogConfig はログの設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text または json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			Driver:    string(camera.DriverSimulated),
			Device:    "auto",
			Board:     "AI-THINKER",
			Model:     "OV2640",
			XCLKMHz:   20,
			PixFormat: camera.PixFormatJPEG.String(),
			FrameSize: int(camera.FrameSizeVGA),
			Quality:   12,
			FBCount:   2,
			FPS:       25,
			Timeout:   5 * time.Second,
		},
		Stream: StreamConfig{
			Quality:   80,
			Framerate: 60,
			Boundary:  "123456789000000000000987654321",
		},
		MDNS: MDNSConfig{
			Enabled:       true,
			QueryInterval: 55 * time.Second,
			QueryTimeout:  5 * time.Second,
			MaxResults:    4,
		},
		MQTT: MQTTConfig{
			Prefix:   "espcam",
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値、YAMLファイル (path が空でなければ)、環境変数の順に上書きする。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.MQTT.Broker = getEnvOrDefault("MQTT_BROKER", c.MQTT.Broker)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	if os.Getenv("DEBUG") != "" {
		c.Log.Level = "debug"
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証 (ストリーム用に Port+1 も使う)
	if c.Server.Port < 1 || c.Server.Port > 65534 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	// カメラ設定の検証
	switch camera.DriverType(c.Camera.Driver) {
	case camera.DriverSimulated:
	case camera.DriverV4L2:
		if c.Camera.Device == "" {
			errs = append(errs, errors.New("v4l2ドライバにはデバイスパスが必要です"))
		}
	default:
		errs = append(errs, fmt.Errorf("サポートされていないドライバ: %s", c.Camera.Driver))
	}
	if _, err := camera.ParsePixFormat(c.Camera.PixFormat); err != nil {
		errs = append(errs, err)
	}
	if err := camera.Validate("framesize", c.Camera.FrameSize); err != nil {
		errs = append(errs, err)
	}
	if err := camera.Validate("quality", c.Camera.Quality); err != nil {
		errs = append(errs, err)
	}
	if c.Camera.FBCount < 1 {
		errs = append(errs, fmt.Errorf("無効なフレームバッファ数: %d", c.Camera.FBCount))
	}
	if c.Camera.FPS < 0 {
		errs = append(errs, fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS))
	}
	if c.Camera.Timeout < 0 {
		errs = append(errs, fmt.Errorf("無効なフレーム待機時間: %s", c.Camera.Timeout))
	}

	// 配信設定の検証
	if c.Stream.Quality < 1 || c.Stream.Quality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Stream.Quality))
	}
	if c.Stream.Boundary == "" {
		errs = append(errs, errors.New("境界文字列が設定されていません"))
	}

	// mDNS設定の検証
	if c.MDNS.Enabled {
		if c.MDNS.QueryInterval <= 0 || c.MDNS.QueryTimeout <= 0 {
			errs = append(errs, errors.New("mDNSの問い合わせ間隔とタイムアウトは正の値である必要があります"))
		}
		if c.MDNS.MaxResults < 1 {
			errs = append(errs, fmt.Errorf("無効なmDNS結果数: %d", c.MDNS.MaxResults))
		}
	}

	if c.MQTT.Broker != "" && c.MQTT.Interval <= 0 {
		errs = append(errs, fmt.Errorf("無効なMQTT送信間隔: %s", c.MQTT.Interval))
	}

	return errors.Join(errs...)
}

// ServerAddress は制御用サーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StreamPort はストリーム用サーバーのポート番号を返す
func (c *Config) StreamPort() int {
	return c.Server.Port + 1
}

// StreamAddress はストリーム用サーバーのリッスンアドレスを返す
func (c *Config) StreamAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.StreamPort())
}

// PixFormat はカメラのピクセルフォーマットを返す
func (c *Config) PixFormat() camera.PixFormat {
	p, err := camera.ParsePixFormat(c.Camera.PixFormat)
	if err != nil {
		return camera.PixFormatJPEG
	}
	return p
}

// DriverConfig はカメラドライバの作成設定を返す
func (c *Config) DriverConfig() camera.DriverConfig {
	return camera.DriverConfig{
		Device:    c.Camera.Device,
		Board:     c.Camera.Board,
		Model:     c.Camera.Model,
		XCLKMHz:   c.Camera.XCLKMHz,
		PixFormat: c.PixFormat(),
		FrameSize: camera.FrameSize(c.Camera.FrameSize),
		Quality:   c.Camera.Quality,
		FPS:       c.Camera.FPS,
		FBCount:   c.Camera.FBCount,
		Timeout:   c.Camera.Timeout,
	}
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
