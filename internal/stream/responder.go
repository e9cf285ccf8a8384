package stream

import (
	"context"
	"fmt"

	"espcam/internal/camera"
)

// ChunkWriter はチャンク単位の出力先
type ChunkWriter interface {
	// WriteChunk は1チャンクを書き込む。切断時はエラーを返す
	WriteChunk(p []byte) error

	// Flush は1パート分の書き込みを送出する
	Flush() error
}

// Responder はフレームを multipart ストリームとして書き出す
type Responder struct {
	source    camera.FrameSource
	encoder   camera.Encoder
	quality   int
	boundary  string
	delimiter []byte
}

// Option は Responder の設定関数
type Option func(*Responder)

// WithQuality は変換時のJPEG品質を設定する
func WithQuality(q int) Option {
	return func(r *Responder) {
		if q > 0 {
			r.quality = q
		}
	}
}

// WithBoundary は境界文字列を設定する
func WithBoundary(b string) Option {
	return func(r *Responder) {
		if b != "" {
			r.boundary = b
		}
	}
}

// NewResponder は新しい Responder を作成する
func NewResponder(source camera.FrameSource, encoder camera.Encoder, opts ...Option) *Responder {
	r := &Responder{
		source:   source,
		encoder:  encoder,
		quality:  DefaultQuality,
		boundary: Boundary,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.delimiter = []byte(Delimiter(r.boundary))
	return r
}

// Boundary は境界文字列を返す
func (r *Responder) Boundary() string {
	return r.boundary
}

// ContentType はレスポンスのContent-Typeを返す
func (r *Responder) ContentType() string {
	return ContentType(r.boundary)
}

// Serve は失敗するまでフレームを書き出し続ける
//
// 戻り値は常に ErrAcquire, ErrEncode, ErrTransport のいずれかをラップする。
func (r *Responder) Serve(ctx context.Context, w ChunkWriter) error {
	for {
		if err := r.serveFrame(ctx, w); err != nil {
			return err
		}
	}
}

// serveFrame は1フレームを書き出す。取得したフレームは必ず返却する
func (r *Responder) serveFrame(ctx context.Context, w ChunkWriter) error {
	f, err := r.source.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// 接続が閉じられた
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	defer r.source.Release(f)

	body := f.Data
	if f.Format != camera.PixFormatJPEG {
		buf, err := r.encoder.Encode(f, r.quality)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncode, err)
		}
		defer r.encoder.Free(buf)
		body = buf
	}

	header := []byte(PartHeader(len(body), f.Timestamp))
	for _, chunk := range [][]byte{r.delimiter, header, body} {
		if err := w.WriteChunk(chunk); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
