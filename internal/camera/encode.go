package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
)

// Encoder はRAWフレームをJPEGへ変換する
type Encoder interface {
	// Encode はフレームをJPEGに変換する。返したバッファは Free で返却すること
	Encode(f *Frame, quality int) ([]byte, error)

	// Free は Encode が返したバッファを返却する
	Free(buf []byte)
}

// JPEGEncoder は変換先バッファを使い回す Encoder 実装
type JPEGEncoder struct {
	buffers     sync.Pool
	outstanding atomic.Int64
}

// NewJPEGEncoder は新しい JPEGEncoder を作成する
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{
		buffers: sync.Pool{
			New: func() any {
				// VGAのJPEGが収まる程度
				buf := make([]byte, 0, 64*1024)
				return &buf
			},
		},
	}
}

// Encode はフレームをJPEGに変換する
func (e *JPEGEncoder) Encode(f *Frame, quality int) ([]byte, error) {
	if f.Format == PixFormatJPEG {
		return nil, fmt.Errorf("既にJPEG形式です")
	}

	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}

	bp := e.buffers.Get().(*[]byte)
	out := bytes.NewBuffer((*bp)[:0])
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		e.buffers.Put(bp)
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}

	e.outstanding.Add(1)
	return out.Bytes(), nil
}

// Free はバッファをプールへ戻す
func (e *JPEGEncoder) Free(buf []byte) {
	if buf == nil {
		return
	}
	e.outstanding.Add(-1)
	buf = buf[:0]
	e.buffers.Put(&buf)
}

// Outstanding は返却されていないバッファ数を返す
func (e *JPEGEncoder) Outstanding() int64 {
	return e.outstanding.Load()
}

// ToImage はRAWフレームを image.Image として解釈する
func ToImage(f *Frame) (image.Image, error) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("無効なフレームサイズ: %dx%d", w, h)
	}
	rect := image.Rect(0, 0, w, h)

	switch f.Format {
	case PixFormatGrayscale:
		if err := expectLen(f, w*h); err != nil {
			return nil, err
		}
		return &image.Gray{Pix: f.Data, Stride: w, Rect: rect}, nil

	case PixFormatYUV422:
		if w%2 != 0 {
			return nil, fmt.Errorf("YUV422の幅は偶数である必要があります: %d", w)
		}
		if err := expectLen(f, w*h*2); err != nil {
			return nil, err
		}
		// Y0 Cb Y1 Cr の並び
		yuyv := image.NewYCbCr(rect, image.YCbCrSubsampleRatio422)
		for i := range yuyv.Cb {
			ii := i * 4
			yuyv.Y[i*2] = f.Data[ii]
			yuyv.Y[i*2+1] = f.Data[ii+2]
			yuyv.Cb[i] = f.Data[ii+1]
			yuyv.Cr[i] = f.Data[ii+3]
		}
		return yuyv, nil

	case PixFormatRGB565:
		if err := expectLen(f, w*h*2); err != nil {
			return nil, err
		}
		img := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			// センサー出力はビッグエンディアン
			v := uint16(f.Data[i*2])<<8 | uint16(f.Data[i*2+1])
			r := uint8(v>>11) & 0x1f
			g := uint8(v>>5) & 0x3f
			b := uint8(v) & 0x1f
			img.SetRGBA(i%w, i/w, color.RGBA{
				R: r<<3 | r>>2,
				G: g<<2 | g>>4,
				B: b<<3 | b>>2,
				A: 0xff,
			})
		}
		return img, nil

	case PixFormatRGB888:
		if err := expectLen(f, w*h*3); err != nil {
			return nil, err
		}
		img := image.NewRGBA(rect)
		for i := 0; i < w*h; i++ {
			img.Pix[i*4] = f.Data[i*3]
			img.Pix[i*4+1] = f.Data[i*3+1]
			img.Pix[i*4+2] = f.Data[i*3+2]
			img.Pix[i*4+3] = 0xff
		}
		return img, nil

	default:
		return nil, fmt.Errorf("変換できないフォーマット: %s", f.Format)
	}
}

func expectLen(f *Frame, n int) error {
	if f.Len() != n {
		return fmt.Errorf("%s のデータ長が不正です (期待: %d, 実際: %d)", f.Format, n, f.Len())
	}
	return nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// SensorQualityToJPEG はセンサーの品質値 (4-63, 小さいほど高画質) をJPEG品質 (1-100) に変換する
func SensorQualityToJPEG(q int) int {
	if q < minQuality {
		q = minQuality
	}
	if q > maxQuality {
		q = maxQuality
	}
	return clampQuality(100 - (q-minQuality)*99/(maxQuality-minQuality))
}
