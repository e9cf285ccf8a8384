package camera

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DriverType はドライバの種類
type DriverType string

const (
	// DriverSimulated はテストパターンを生成するソフトウェアセンサー
	DriverSimulated DriverType = "simulated"
	// DriverV4L2 はV4L2デバイス
	DriverV4L2 DriverType = "v4l2"
)

// DriverConfig はドライバ作成設定
type DriverConfig struct {
	Device    string        // デバイスパス (v4l2)
	Board     string        // ボード名
	Model     string        // センサーモデル
	XCLKMHz   int           // 入力クロック
	PixFormat PixFormat     // 出力フォーマット
	FrameSize FrameSize     // 初期解像度
	Quality   int           // 初期品質 (4-63)
	FPS       int           // フレームレート
	FBCount   int           // フレームバッファ数
	Timeout   time.Duration // フレーム待機タイムアウト
	Logger    *slog.Logger  // nil なら slog.Default()
}

// DriverCreator はドライバ作成関数の型
type DriverCreator func(cfg DriverConfig) (Driver, error)

var creators = map[DriverType]DriverCreator{
	DriverSimulated: func(cfg DriverConfig) (Driver, error) {
		return NewSimulatedSensor(SimulatedConfig{
			Board:     cfg.Board,
			Model:     cfg.Model,
			XCLKMHz:   cfg.XCLKMHz,
			PixFormat: cfg.PixFormat,
			FrameSize: cfg.FrameSize,
			Quality:   cfg.Quality,
			FPS:       cfg.FPS,
			FBCount:   cfg.FBCount,
			Logger:    cfg.Logger,
		})
	},
	DriverV4L2: func(cfg DriverConfig) (Driver, error) {
		return NewV4L2Sensor(V4L2Config{
			Device:    cfg.Device,
			Board:     cfg.Board,
			Model:     cfg.Model,
			PixFormat: cfg.PixFormat,
			FrameSize: cfg.FrameSize,
			Quality:   cfg.Quality,
			FPS:       cfg.FPS,
			FBCount:   cfg.FBCount,
			Timeout:   cfg.Timeout,
			Logger:    cfg.Logger,
		})
	},
}

// NewDriver は種類に応じたドライバを作成する
func NewDriver(t DriverType, cfg DriverConfig) (Driver, error) {
	creator, exists := creators[t]
	if !exists {
		return nil, fmt.Errorf("サポートされていないドライバ: %s", t)
	}

	d, err := creator(cfg)
	if err != nil {
		return nil, fmt.Errorf("ドライバ %s の作成に失敗: %w", t, err)
	}
	return d, nil
}

// SupportedDrivers は登録されているドライバ名を返す
func SupportedDrivers() []DriverType {
	types := make([]DriverType, 0, len(creators))
	for t := range creators {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// frameWaitSeconds はフレーム待機時間を秒単位に切り上げる。1秒未満は1秒
func frameWaitSeconds(d time.Duration) uint32 {
	if d <= time.Second {
		return 1
	}
	return uint32((d + time.Second - 1) / time.Second)
}
