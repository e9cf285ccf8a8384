package stream

import (
	"errors"
)

var (
	// ErrAcquire はフレーム取得の失敗
	ErrAcquire = errors.New("stream: frame acquisition failed")
	// ErrEncode はJPEG変換の失敗
	ErrEncode = errors.New("stream: jpeg encoding failed")
	// ErrTransport はチャンク書き込みの失敗
	ErrTransport = errors.New("stream: chunk write failed")
)

// Kind はエラーの分類名を返す
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAcquire):
		return "acquire"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}

// IsHardwareFault はカメラ側の障害か判定する。クライアント切断は含まない
func IsHardwareFault(err error) bool {
	return errors.Is(err, ErrAcquire) || errors.Is(err, ErrEncode)
}
