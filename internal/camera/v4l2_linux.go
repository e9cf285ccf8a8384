//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"
)

// V4L2のピクセルフォーマット (FourCC)
const (
	v4l2PixFmtMJPEG  webcam.PixelFormat = 0x47504A4D // MJPG
	v4l2PixFmtYUYV   webcam.PixelFormat = 0x56595559 // YUYV
	v4l2PixFmtGrey   webcam.PixelFormat = 0x59455247 // GREY
	v4l2PixFmtRGB565 webcam.PixelFormat = 0x50424752 // RGBP
	v4l2PixFmtRGB24  webcam.PixelFormat = 0x33424752 // RGB3
)

// V4L2のコントロールID
const (
	cidBrightness       webcam.ControlID = 0x00980900
	cidContrast         webcam.ControlID = 0x00980901
	cidSaturation       webcam.ControlID = 0x00980902
	cidAutoWhiteBalance webcam.ControlID = 0x0098090c
	cidAutoGain         webcam.ControlID = 0x00980912
	cidGain             webcam.ControlID = 0x00980913
	cidHFlip            webcam.ControlID = 0x00980914
	cidVFlip            webcam.ControlID = 0x00980915
	cidSharpness        webcam.ControlID = 0x0098091b
	cidColorFX          webcam.ControlID = 0x0098091f
	cidExposureAuto     webcam.ControlID = 0x009a0901
	cidExposureAbsolute webcam.ControlID = 0x009a0902
	cidJPEGQuality      webcam.ControlID = 0x009d0903
)

var v4l2Formats = map[webcam.PixelFormat]PixFormat{
	v4l2PixFmtMJPEG:  PixFormatJPEG,
	v4l2PixFmtYUYV:   PixFormatYUV422,
	v4l2PixFmtGrey:   PixFormatGrayscale,
	v4l2PixFmtRGB565: PixFormatRGB565,
	v4l2PixFmtRGB24:  PixFormatRGB888,
}

// ESPのエフェクト番号 → V4L2 COLORFX
var colorFX = map[int]int32{
	0: 0, // none
	1: 3, // negative
	2: 1, // grayscale (B&W)
	6: 2, // sepia
}

// V4L2Config はV4L2ドライバの設定
type V4L2Config struct {
	Device    string
	Board     string
	Model     string // 空ならデバイス名を使う
	PixFormat PixFormat
	FrameSize FrameSize
	Quality   int
	FPS       int
	FBCount   int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// V4L2Sensor はV4L2デバイスの Driver 実装
//
// デバイスのmmapバッファをそのままフレームとして貸し出す。
type V4L2Sensor struct {
	cam      *webcam.Webcam
	devMu    sync.Mutex
	format   webcam.PixelFormat
	width    int
	height   int
	timeout  uint32        // WaitForFrame の秒数
	wait     time.Duration // 解像度変更時の返却待ち
	controls map[webcam.ControlID]webcam.Control

	slots chan struct{}
	start time.Time

	info   Info
	status Status
	mu     sync.RWMutex

	logger *slog.Logger
}

// NewV4L2Sensor はデバイスを開いてストリーミングを開始する
func NewV4L2Sensor(cfg V4L2Config) (*V4L2Sensor, error) {
	device := cfg.Device
	if device == "" || device == "auto" {
		devices, err := ScanDevices()
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("V4L2デバイスが見つかりません")
		}
		device = devices[0]
	}

	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("デバイス %s を開けません: %w", device, err)
	}

	format, ok := pickFormat(cam, cfg.PixFormat)
	if !ok {
		_ = cam.Close()
		return nil, fmt.Errorf("デバイス %s は %s に対応していません", device, cfg.PixFormat)
	}

	fbCount := cfg.FBCount
	if fbCount < 1 {
		fbCount = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &V4L2Sensor{
		cam:      cam,
		format:   format,
		timeout:  frameWaitSeconds(timeout),
		wait:     timeout,
		controls: cam.GetControls(),
		slots:    make(chan struct{}, fbCount),
		start:    time.Now(),
		info: Info{
			Board:     cfg.Board,
			Model:     sensorModel(cfg.Model, cam),
			PixFormat: v4l2Formats[format],
		},
		logger: logger.With("component", "camera", "driver", "v4l2", "device", device),
		status: Status{
			Framesize: int(cfg.FrameSize),
			Quality:   cfg.Quality,
		},
	}

	if err := cam.SetBufferCount(uint32(fbCount)); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("バッファ数の設定に失敗: %w", err)
	}
	if err := s.configure(cfg.FrameSize); err != nil {
		_ = cam.Close()
		return nil, err
	}
	if cfg.FPS > 0 {
		// 対応していないデバイスもあるので失敗は無視する
		_ = cam.SetFramerate(float32(cfg.FPS))
	}
	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return nil, fmt.Errorf("ストリーミング開始に失敗: %w", err)
	}
	return s, nil
}

// sensorModel は設定値、なければデバイスのカード名を返す
func sensorModel(model string, cam *webcam.Webcam) string {
	if model != "" {
		return model
	}
	if name, err := cam.GetName(); err == nil && name != "" {
		return name
	}
	return "V4L2"
}

func pickFormat(cam *webcam.Webcam, want PixFormat) (webcam.PixelFormat, bool) {
	supported := cam.GetSupportedFormats()
	for f := range supported {
		if pf, known := v4l2Formats[f]; known && pf == want {
			return f, true
		}
	}
	return 0, false
}

// configure はフレームサイズに最も近い解像度を設定する（ストリーミング停止中に呼ぶこと）
func (s *V4L2Sensor) configure(fs FrameSize) error {
	want := fs.Resolution()
	w, h := uint32(want.Width), uint32(want.Height)

	var best *webcam.FrameSize
	for _, size := range s.cam.GetSupportedFrameSizes(s.format) {
		size := size
		if size.MaxWidth <= w && size.MaxHeight <= h {
			if best == nil || size.MaxWidth*size.MaxHeight > best.MaxWidth*best.MaxHeight {
				best = &size
			}
		}
	}
	if best != nil {
		w, h = best.MaxWidth, best.MaxHeight
	}

	_, gw, gh, err := s.cam.SetImageFormat(s.format, w, h)
	if err != nil {
		return fmt.Errorf("画像フォーマットの設定に失敗: %w", err)
	}
	s.width, s.height = int(gw), int(gh)
	return nil
}

// Info はセンサー情報を返す
func (s *V4L2Sensor) Info() Info {
	return s.info
}

// Status は現在の設定値を返す
func (s *V4L2Sensor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Acquire は次のフレームをデキューする
func (s *V4L2Sensor) Acquire(ctx context.Context) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s.slots <- struct{}{}:
	}

	f, err := s.dequeue()
	if err != nil {
		<-s.slots
		return nil, err
	}
	return f, nil
}

func (s *V4L2Sensor) dequeue() (*Frame, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	for {
		err := s.cam.WaitForFrame(s.timeout)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			return nil, fmt.Errorf("フレーム待機がタイムアウトしました: %w", err)
		default:
			return nil, fmt.Errorf("フレーム待機に失敗: %w", err)
		}

		data, index, err := s.cam.GetFrame()
		if err != nil {
			return nil, fmt.Errorf("フレーム取得に失敗: %w", err)
		}
		if len(data) == 0 {
			// 空フレームはすぐ返却して次を待つ
			_ = s.cam.ReleaseFrame(index)
			continue
		}

		return &Frame{
			Data:      data,
			Format:    s.info.PixFormat,
			Width:     s.width,
			Height:    s.height,
			Timestamp: time.Since(s.start),
			slot:      int(index),
		}, nil
	}
}

// Release はバッファをドライバのキューへ戻す
func (s *V4L2Sensor) Release(f *Frame) {
	if f == nil {
		return
	}
	s.devMu.Lock()
	err := s.cam.ReleaseFrame(uint32(f.slot))
	s.devMu.Unlock()
	if err != nil {
		s.logger.Error("フレームの返却に失敗", "slot", f.slot, "error", err)
	}
	f.Data = nil
	<-s.slots
}

// Close はストリーミングを止めてデバイスを閉じる
func (s *V4L2Sensor) Close() error {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	_ = s.cam.StopStreaming()
	return s.cam.Close()
}

// SetFramesize は全バッファの返却を待ってから解像度を変更する。
// 待機時間内に返却されなければ ErrBusy を返す
func (s *V4L2Sensor) SetFramesize(v FrameSize) error {
	if !v.Valid() {
		return fmt.Errorf("%w: framesize %d", ErrOutOfRange, v)
	}

	// 全スロットを確保して貸し出し中のフレームをなくす
	release, err := reserveSlots(s.slots, s.wait)
	if err != nil {
		return err
	}
	defer release()

	s.devMu.Lock()
	defer s.devMu.Unlock()

	if err := s.cam.StopStreaming(); err != nil {
		return fmt.Errorf("ストリーミング停止に失敗: %w", err)
	}
	if err := s.configure(v); err != nil {
		return err
	}
	if err := s.cam.StartStreaming(); err != nil {
		return fmt.Errorf("ストリーミング再開に失敗: %w", err)
	}

	s.mu.Lock()
	s.status.Framesize = int(v)
	s.mu.Unlock()
	return nil
}

// setScaled は -2..2 などの範囲をコントロールの Min..Max に線形変換して設定する
func (s *V4L2Sensor) setScaled(id webcam.ControlID, r Range, v int) error {
	if err := r.Check(v); err != nil {
		return err
	}
	ctrl, ok := s.controls[id]
	if !ok {
		return ErrUnsupported
	}
	span := int64(ctrl.Max) - int64(ctrl.Min)
	val := int64(ctrl.Min) + span*int64(v-r.Min)/int64(r.Max-r.Min)
	return s.setControl(id, int32(val))
}

func (s *V4L2Sensor) setControl(id webcam.ControlID, val int32) error {
	if _, ok := s.controls[id]; !ok {
		return ErrUnsupported
	}
	s.devMu.Lock()
	defer s.devMu.Unlock()
	if err := s.cam.SetControl(id, val); err != nil {
		return fmt.Errorf("コントロール %#x の設定に失敗: %w", uint32(id), err)
	}
	return nil
}

func (s *V4L2Sensor) setBoolControl(id webcam.ControlID, on bool) error {
	return s.setControl(id, int32(b2i(on)))
}

// update はデバイスへの反映に成功した時だけステータスを更新する
func (s *V4L2Sensor) update(err error, apply func(st *Status)) error {
	if err != nil {
		return err
	}
	s.mu.Lock()
	apply(&s.status)
	s.mu.Unlock()
	return nil
}

func (s *V4L2Sensor) SetQuality(v int) error {
	if err := (Range{minQuality, maxQuality}).Check(v); err != nil {
		return err
	}
	err := s.setControl(cidJPEGQuality, int32(SensorQualityToJPEG(v)))
	return s.update(err, func(st *Status) { st.Quality = v })
}

func (s *V4L2Sensor) SetBrightness(v int) error {
	err := s.setScaled(cidBrightness, Range{minLevel, maxLevel}, v)
	return s.update(err, func(st *Status) { st.Brightness = v })
}

func (s *V4L2Sensor) SetContrast(v int) error {
	err := s.setScaled(cidContrast, Range{minLevel, maxLevel}, v)
	return s.update(err, func(st *Status) { st.Contrast = v })
}

func (s *V4L2Sensor) SetSaturation(v int) error {
	err := s.setScaled(cidSaturation, Range{minLevel, maxLevel}, v)
	return s.update(err, func(st *Status) { st.Saturation = v })
}

func (s *V4L2Sensor) SetSharpness(v int) error {
	err := s.setScaled(cidSharpness, Range{minLevel, maxLevel}, v)
	return s.update(err, func(st *Status) { st.Sharpness = v })
}

func (s *V4L2Sensor) SetSpecialEffect(v int) error {
	fx, ok := colorFX[v]
	if !ok {
		return ErrUnsupported
	}
	err := s.setControl(cidColorFX, fx)
	return s.update(err, func(st *Status) { st.SpecialEffect = v })
}

func (s *V4L2Sensor) SetAWB(on bool) error {
	err := s.setBoolControl(cidAutoWhiteBalance, on)
	return s.update(err, func(st *Status) { st.AWB = on })
}

func (s *V4L2Sensor) SetAEC(on bool) error {
	// 1: manual, 3: aperture priority
	mode := int32(1)
	if on {
		mode = 3
	}
	err := s.setControl(cidExposureAuto, mode)
	return s.update(err, func(st *Status) { st.AEC = on })
}

func (s *V4L2Sensor) SetAECValue(v int) error {
	err := s.setScaled(cidExposureAbsolute, Range{0, maxAECValue}, v)
	return s.update(err, func(st *Status) { st.AECValue = v })
}

func (s *V4L2Sensor) SetAGC(on bool) error {
	err := s.setBoolControl(cidAutoGain, on)
	return s.update(err, func(st *Status) { st.AGC = on })
}

func (s *V4L2Sensor) SetAGCGain(v int) error {
	err := s.setScaled(cidGain, Range{0, maxAGCGain}, v)
	return s.update(err, func(st *Status) { st.AGCGain = v })
}

func (s *V4L2Sensor) SetHMirror(on bool) error {
	err := s.setBoolControl(cidHFlip, on)
	return s.update(err, func(st *Status) { st.HMirror = on })
}

func (s *V4L2Sensor) SetVFlip(on bool) error {
	err := s.setBoolControl(cidVFlip, on)
	return s.update(err, func(st *Status) { st.VFlip = on })
}

// V4L2に対応するコントロールがない項目

func (s *V4L2Sensor) SetWBMode(int) error      { return ErrUnsupported }
func (s *V4L2Sensor) SetAWBGain(bool) error    { return ErrUnsupported }
func (s *V4L2Sensor) SetAEC2(bool) error       { return ErrUnsupported }
func (s *V4L2Sensor) SetAELevel(int) error     { return ErrUnsupported }
func (s *V4L2Sensor) SetGainCeiling(int) error { return ErrUnsupported }
func (s *V4L2Sensor) SetBPC(bool) error        { return ErrUnsupported }
func (s *V4L2Sensor) SetWPC(bool) error        { return ErrUnsupported }
func (s *V4L2Sensor) SetRawGMA(bool) error     { return ErrUnsupported }
func (s *V4L2Sensor) SetLENC(bool) error       { return ErrUnsupported }
func (s *V4L2Sensor) SetDCW(bool) error        { return ErrUnsupported }
func (s *V4L2Sensor) SetColorbar(bool) error   { return ErrUnsupported }
