package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PixFormat はセンサーが出力するピクセルフォーマット
type PixFormat int

const (
	PixFormatRGB565    PixFormat = iota // 16bit RGB
	PixFormatYUV422                     // YUYV 4:2:2
	PixFormatGrayscale                  // 8bit グレースケール
	PixFormatJPEG                       // エンコード済みJPEG
	PixFormatRGB888                     // 24bit RGB
)

// String はフォーマット名を返す
func (p PixFormat) String() string {
	switch p {
	case PixFormatRGB565:
		return "RGB565"
	case PixFormatYUV422:
		return "YUV422"
	case PixFormatGrayscale:
		return "GRAYSCALE"
	case PixFormatJPEG:
		return "JPEG"
	case PixFormatRGB888:
		return "RGB888"
	default:
		return fmt.Sprintf("PixFormat(%d)", int(p))
	}
}

// ParsePixFormat はフォーマット名を PixFormat に変換する
func ParsePixFormat(s string) (PixFormat, error) {
	for p := PixFormatRGB565; p <= PixFormatRGB888; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("不明なピクセルフォーマット: %s", s)
}

// FrameSize はセンサーの解像度インデックス
type FrameSize int

const (
	FrameSize96x96 FrameSize = iota
	FrameSizeQQVGA
	FrameSizeQCIF
	FrameSizeHQVGA
	FrameSize240x240
	FrameSizeQVGA
	FrameSizeCIF
	FrameSizeHVGA
	FrameSizeVGA
	FrameSizeSVGA
	FrameSizeXGA
	FrameSizeHD
	FrameSizeSXGA
	FrameSizeUXGA
)

// 解像度テーブル
var frameSizes = [...]Resolution{
	FrameSize96x96:   {96, 96},
	FrameSizeQQVGA:   {160, 120},
	FrameSizeQCIF:    {176, 144},
	FrameSizeHQVGA:   {240, 176},
	FrameSize240x240: {240, 240},
	FrameSizeQVGA:    {320, 240},
	FrameSizeCIF:     {400, 296},
	FrameSizeHVGA:    {480, 320},
	FrameSizeVGA:     {640, 480},
	FrameSizeSVGA:    {800, 600},
	FrameSizeXGA:     {1024, 768},
	FrameSizeHD:      {1280, 720},
	FrameSizeSXGA:    {1280, 1024},
	FrameSizeUXGA:    {1600, 1200},
}

// Resolution は画像の解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Valid はインデックスがテーブル内か確認する
func (f FrameSize) Valid() bool {
	return f >= FrameSize96x96 && f <= FrameSizeUXGA
}

// Resolution は解像度を返す。範囲外は VGA として扱う
func (f FrameSize) Resolution() Resolution {
	if !f.Valid() {
		return frameSizes[FrameSizeVGA]
	}
	return frameSizes[f]
}

// Frame はセンサーから取得した1枚の画像
//
// Acquire から Release までの間だけ呼び出し側が所有する。
type Frame struct {
	Data      []byte        // 画像データ
	Format    PixFormat     // ピクセルフォーマット
	Width     int           // 幅
	Height    int           // 高さ
	Timestamp time.Duration // センサー起動からのキャプチャ時刻

	slot int // プール内のスロット番号
}

// Len はデータ長を返す
func (f *Frame) Len() int {
	return len(f.Data)
}

// SplitTimestamp は経過時間を秒とマイクロ秒に分解する
func SplitTimestamp(d time.Duration) (sec, usec int64) {
	sec = int64(d / time.Second)
	usec = int64((d % time.Second) / time.Microsecond)
	return sec, usec
}

// FormatTimestamp は "<sec>.<usec 6桁>" 形式の文字列を返す
func FormatTimestamp(d time.Duration) string {
	sec, usec := SplitTimestamp(d)
	return fmt.Sprintf("%d.%06d", sec, usec)
}

var (
	// ErrUnsupported はドライバが対応していない操作
	ErrUnsupported = errors.New("camera: unsupported operation")
	// ErrPoolClosed はクローズ済みプールへの要求
	ErrPoolClosed = errors.New("camera: frame pool closed")
	// ErrOutOfRange は制御値が範囲外
	ErrOutOfRange = errors.New("camera: value out of range")
	// ErrUnknownControl は存在しない制御項目
	ErrUnknownControl = errors.New("camera: unknown control")
	// ErrBusy はフレームが返却されず操作できない
	ErrBusy = errors.New("camera: frame buffers in use")
	// ErrInvalidRelease は二重返却や他のプールのフレームの返却
	ErrInvalidRelease = errors.New("camera: invalid frame release")
)

// FrameSource はフレームバッファの貸し出し元
type FrameSource interface {
	// Acquire は次のフレームを取得する。次のフレーム周期までブロックすることがある
	Acquire(ctx context.Context) (*Frame, error)

	// Release はフレームをプールへ返却する
	Release(f *Frame)
}

// Status はセンサーの現在値
type Status struct {
	Framesize     int  `json:"framesize"`
	Quality       int  `json:"quality"`
	Brightness    int  `json:"brightness"`
	Contrast      int  `json:"contrast"`
	Saturation    int  `json:"saturation"`
	Sharpness     int  `json:"sharpness"`
	SpecialEffect int  `json:"special_effect"`
	WBMode        int  `json:"wb_mode"`
	AWB           bool `json:"awb"`
	AWBGain       bool `json:"awb_gain"`
	AEC           bool `json:"aec"`
	AEC2          bool `json:"aec2"`
	AELevel       int  `json:"ae_level"`
	AECValue      int  `json:"aec_value"`
	AGC           bool `json:"agc"`
	AGCGain       int  `json:"agc_gain"`
	GainCeiling   int  `json:"gainceiling"`
	BPC           bool `json:"bpc"`
	WPC           bool `json:"wpc"`
	RawGMA        bool `json:"raw_gma"`
	LENC          bool `json:"lenc"`
	HMirror       bool `json:"hmirror"`
	VFlip         bool `json:"vflip"`
	DCW           bool `json:"dcw"`
	Colorbar      bool `json:"colorbar"`
}

// Info はセンサーの固定情報
type Info struct {
	Board     string    // ボード名
	Model     string    // センサーモデル (OV2640 など)
	XCLKMHz   int       // 入力クロック
	PixFormat PixFormat // 出力フォーマット
}

// Sensor はセンサーの調整項目ごとのメソッドを持つ
type Sensor interface {
	Info() Info
	Status() Status

	SetFramesize(v FrameSize) error
	SetQuality(v int) error
	SetBrightness(v int) error
	SetContrast(v int) error
	SetSaturation(v int) error
	SetSharpness(v int) error
	SetSpecialEffect(v int) error
	SetWBMode(v int) error
	SetAWB(on bool) error
	SetAWBGain(on bool) error
	SetAEC(on bool) error
	SetAEC2(on bool) error
	SetAELevel(v int) error
	SetAECValue(v int) error
	SetAGC(on bool) error
	SetAGCGain(v int) error
	SetGainCeiling(v int) error
	SetBPC(on bool) error
	SetWPC(on bool) error
	SetRawGMA(on bool) error
	SetLENC(on bool) error
	SetHMirror(on bool) error
	SetVFlip(on bool) error
	SetDCW(on bool) error
	SetColorbar(on bool) error
}

// Driver はセンサー制御とフレーム供給をまとめたもの
type Driver interface {
	Sensor
	FrameSource

	// Close はデバイスとプールを解放する
	Close() error
}
