package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// SimulatedConfig はソフトウェアセンサーの設定
type SimulatedConfig struct {
	Board     string
	Model     string
	XCLKMHz   int
	PixFormat PixFormat
	FrameSize FrameSize
	Quality   int
	FPS       int
	FBCount   int
	Logger    *slog.Logger
}

// SimulatedSensor はテストパターンを生成する Driver 実装
type SimulatedSensor struct {
	info   Info
	status Status
	mu     sync.RWMutex

	pool     *Pool
	interval time.Duration
	start    time.Time
	next     time.Time
	frameNo  int
	clockMu  sync.Mutex

	logger *slog.Logger
}

// NewSimulatedSensor は新しい SimulatedSensor を作成する
func NewSimulatedSensor(cfg SimulatedConfig) (*SimulatedSensor, error) {
	if !cfg.FrameSize.Valid() {
		return nil, fmt.Errorf("無効なフレームサイズ: %d", cfg.FrameSize)
	}
	if cfg.PixFormat < PixFormatRGB565 || cfg.PixFormat > PixFormatRGB888 {
		return nil, fmt.Errorf("無効なピクセルフォーマット: %d", cfg.PixFormat)
	}
	if cfg.Quality == 0 {
		cfg.Quality = 12
	}
	if err := (Range{minQuality, maxQuality}).Check(cfg.Quality); err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}

	var interval time.Duration
	if cfg.FPS > 0 {
		interval = time.Second / time.Duration(cfg.FPS)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	return &SimulatedSensor{
		info: Info{
			Board:     cfg.Board,
			Model:     cfg.Model,
			XCLKMHz:   cfg.XCLKMHz,
			PixFormat: cfg.PixFormat,
		},
		status: Status{
			Framesize: int(cfg.FrameSize),
			Quality:   cfg.Quality,
			AWB:       true,
			AWBGain:   true,
			AEC:       true,
			AECValue:  300,
			AGC:       true,
			BPC:       false,
			WPC:       true,
			RawGMA:    true,
			LENC:      true,
			DCW:       true,
		},
		pool:     NewPool(cfg.FBCount),
		interval: interval,
		start:    now,
		next:     now,
		logger:   logger.With("component", "camera", "driver", "simulated"),
	}, nil
}

// Info はセンサー情報を返す
func (s *SimulatedSensor) Info() Info {
	return s.info
}

// Status は現在の設定値を返す
func (s *SimulatedSensor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Acquire は次のフレーム周期を待ち、テストパターンを描画したフレームを返す
func (s *SimulatedSensor) Acquire(ctx context.Context) (*Frame, error) {
	frameNo, err := s.waitFrameInterval(ctx)
	if err != nil {
		return nil, err
	}

	f, err := s.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	st := s.Status()
	if err := s.render(f, st, frameNo); err != nil {
		_ = s.pool.Put(f)
		return nil, err
	}
	f.Timestamp = time.Since(s.start)
	return f, nil
}

// Release はフレームをプールへ返す。不正な返却はログに残す
func (s *SimulatedSensor) Release(f *Frame) {
	if err := s.pool.Put(f); err != nil {
		s.logger.Error("フレームの返却に失敗", "error", err)
	}
}

// Close はプールを閉じる
func (s *SimulatedSensor) Close() error {
	s.pool.Close()
	return nil
}

// waitFrameInterval は設定FPSに合わせて待機し、フレーム番号を返す
func (s *SimulatedSensor) waitFrameInterval(ctx context.Context) (int, error) {
	s.clockMu.Lock()
	now := time.Now()
	wait := s.next.Sub(now)
	if s.next.Before(now) {
		s.next = now
	}
	s.next = s.next.Add(s.interval)
	s.frameNo++
	n := s.frameNo
	s.clockMu.Unlock()

	if wait <= 0 {
		return n, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return n, nil
	}
}

// render はステータスに従ってフレームを描画する
func (s *SimulatedSensor) render(f *Frame, st Status, frameNo int) error {
	res := FrameSize(st.Framesize).Resolution()
	w, h := res.Width, res.Height
	f.Width, f.Height = w, h
	f.Format = s.info.PixFormat

	pixel := patternFunc(st, w, h, frameNo)

	switch s.info.PixFormat {
	case PixFormatGrayscale:
		f.Data = grow(f.Data, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := pixel(x, y)
				f.Data[y*w+x] = color.GrayModel.Convert(c).(color.Gray).Y
			}
		}

	case PixFormatRGB565:
		f.Data = grow(f.Data, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := pixel(x, y)
				v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
				i := (y*w + x) * 2
				f.Data[i] = byte(v >> 8)
				f.Data[i+1] = byte(v)
			}
		}

	case PixFormatRGB888:
		f.Data = grow(f.Data, w*h*3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := pixel(x, y)
				i := (y*w + x) * 3
				f.Data[i], f.Data[i+1], f.Data[i+2] = c.R, c.G, c.B
			}
		}

	case PixFormatYUV422:
		f.Data = grow(f.Data, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x += 2 {
				y0, cb, cr := color.RGBToYCbCr(rgb(pixel(x, y)))
				y1, _, _ := color.RGBToYCbCr(rgb(pixel(x+1, y)))
				i := (y*w + x) * 2
				f.Data[i], f.Data[i+1], f.Data[i+2], f.Data[i+3] = y0, cb, y1, cr
			}
		}

	case PixFormatJPEG:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, pixel(x, y))
			}
		}
		buf := bytes.NewBuffer(f.Data[:0])
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: SensorQualityToJPEG(st.Quality)}); err != nil {
			return fmt.Errorf("テストパターンのJPEG化に失敗: %w", err)
		}
		f.Data = buf.Bytes()

	default:
		return fmt.Errorf("描画できないフォーマット: %s", s.info.PixFormat)
	}
	return nil
}

func rgb(c color.RGBA) (uint8, uint8, uint8) {
	return c.R, c.G, c.B
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// カラーバーの色 (白, 黄, シアン, 緑, マゼンタ, 赤, 青, 黒)
var colorbars = [...]color.RGBA{
	{0xff, 0xff, 0xff, 0xff},
	{0xff, 0xff, 0x00, 0xff},
	{0x00, 0xff, 0xff, 0xff},
	{0x00, 0xff, 0x00, 0xff},
	{0xff, 0x00, 0xff, 0xff},
	{0xff, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xff, 0xff},
	{0x00, 0x00, 0x00, 0xff},
}

// patternFunc は座標から画素値を返す関数を作る
func patternFunc(st Status, w, h, frameNo int) func(x, y int) color.RGBA {
	offset := st.Brightness * 32
	bar := frameNo % w

	return func(x, y int) color.RGBA {
		if x >= w {
			x = w - 1
		}
		if st.HMirror {
			x = w - 1 - x
		}
		if st.VFlip {
			y = h - 1 - y
		}

		var c color.RGBA
		switch {
		case st.Colorbar:
			c = colorbars[x*len(colorbars)/w]
		case x == bar:
			c = color.RGBA{0xff, 0xff, 0xff, 0xff}
		default:
			c = color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 127 / (w + h)),
				A: 0xff,
			}
		}
		c.R = addClamp(c.R, offset)
		c.G = addClamp(c.G, offset)
		c.B = addClamp(c.B, offset)
		return c
	}
}

func addClamp(v uint8, d int) uint8 {
	n := int(v) + d
	if n < 0 {
		return 0
	}
	if n > 0xff {
		return 0xff
	}
	return uint8(n)
}

// setInt は範囲を検証して値を更新する
func (s *SimulatedSensor) setInt(r Range, v int, dst func(*Status) *int) error {
	if err := r.Check(v); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	*dst(&s.status) = v
	return nil
}

func (s *SimulatedSensor) setBool(on bool, dst func(*Status) *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	*dst(&s.status) = on
	return nil
}

// SetFramesize は解像度を変更する
func (s *SimulatedSensor) SetFramesize(v FrameSize) error {
	if !v.Valid() {
		return fmt.Errorf("%w: framesize %d", ErrOutOfRange, v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Framesize = int(v)
	return nil
}

func (s *SimulatedSensor) SetQuality(v int) error {
	return s.setInt(Range{minQuality, maxQuality}, v, func(st *Status) *int { return &st.Quality })
}

func (s *SimulatedSensor) SetBrightness(v int) error {
	return s.setInt(Range{minLevel, maxLevel}, v, func(st *Status) *int { return &st.Brightness })
}

func (s *SimulatedSensor) SetContrast(v int) error {
	return s.setInt(Range{minLevel, maxLevel}, v, func(st *Status) *int { return &st.Contrast })
}

func (s *SimulatedSensor) SetSaturation(v int) error {
	return s.setInt(Range{minLevel, maxLevel}, v, func(st *Status) *int { return &st.Saturation })
}

func (s *SimulatedSensor) SetSharpness(v int) error {
	return s.setInt(Range{minLevel, maxLevel}, v, func(st *Status) *int { return &st.Sharpness })
}

func (s *SimulatedSensor) SetSpecialEffect(v int) error {
	return s.setInt(Range{0, maxEffect}, v, func(st *Status) *int { return &st.SpecialEffect })
}

func (s *SimulatedSensor) SetWBMode(v int) error {
	return s.setInt(Range{0, maxWBMode}, v, func(st *Status) *int { return &st.WBMode })
}

func (s *SimulatedSensor) SetAELevel(v int) error {
	return s.setInt(Range{minLevel, maxLevel}, v, func(st *Status) *int { return &st.AELevel })
}

func (s *SimulatedSensor) SetAECValue(v int) error {
	return s.setInt(Range{0, maxAECValue}, v, func(st *Status) *int { return &st.AECValue })
}

func (s *SimulatedSensor) SetAGCGain(v int) error {
	return s.setInt(Range{0, maxAGCGain}, v, func(st *Status) *int { return &st.AGCGain })
}

func (s *SimulatedSensor) SetGainCeiling(v int) error {
	return s.setInt(Range{0, maxGainCeiling}, v, func(st *Status) *int { return &st.GainCeiling })
}

func (s *SimulatedSensor) SetAWB(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.AWB })
}

func (s *SimulatedSensor) SetAWBGain(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.AWBGain })
}

func (s *SimulatedSensor) SetAEC(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.AEC })
}

func (s *SimulatedSensor) SetAEC2(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.AEC2 })
}

func (s *SimulatedSensor) SetAGC(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.AGC })
}

func (s *SimulatedSensor) SetBPC(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.BPC })
}

func (s *SimulatedSensor) SetWPC(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.WPC })
}

func (s *SimulatedSensor) SetRawGMA(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.RawGMA })
}

func (s *SimulatedSensor) SetLENC(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.LENC })
}

func (s *SimulatedSensor) SetHMirror(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.HMirror })
}

func (s *SimulatedSensor) SetVFlip(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.VFlip })
}

func (s *SimulatedSensor) SetDCW(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.DCW })
}

func (s *SimulatedSensor) SetColorbar(on bool) error {
	return s.setBool(on, func(st *Status) *bool { return &st.Colorbar })
}
