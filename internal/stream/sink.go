package stream

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNoFlusher はレスポンスがチャンク送出に対応していない
var ErrNoFlusher = errors.New("stream: response writer does not support flushing")

// HTTPSink は http.ResponseWriter へのチャンク出力
type HTTPSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

// NewHTTPSink はストリーム用のレスポンスヘッダを設定する
//
// Flush に対応していない場合はヘッダを設定せず ErrNoFlusher を返す。
func NewHTTPSink(w http.ResponseWriter, contentType string, framerate int) (*HTTPSink, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrNoFlusher
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Framerate", strconv.Itoa(framerate))

	return &HTTPSink{w: w, rc: http.NewResponseController(w)}, nil
}

// WriteChunk はチャンクを書き込む。最初の書き込みでステータス200が確定する
func (s *HTTPSink) WriteChunk(p []byte) error {
	if !s.started {
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	_, err := s.w.Write(p)
	return err
}

// Flush はバッファを送出する
func (s *HTTPSink) Flush() error {
	return s.rc.Flush()
}

// Started はボディの書き込みが始まったか返す
func (s *HTTPSink) Started() bool {
	return s.started
}

// Fail は書き込み開始前であればエラーステータスを返す。開始後は何もしない
func (s *HTTPSink) Fail(status int) bool {
	if s.started {
		return false
	}
	s.w.Header().Del("Content-Type")
	s.w.Header().Del("X-Framerate")
	s.w.WriteHeader(status)
	s.started = true
	return true
}

// WebSocketSink は1パートを1つのバイナリメッセージとして送る
type WebSocketSink struct {
	conn *websocket.Conn
	buf  bytes.Buffer
	mu   sync.Mutex
}

// NewWebSocketSink は新しい WebSocketSink を作成する
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

// WriteChunk はパートのバッファへ追記する
func (s *WebSocketSink) WriteChunk(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	return nil
}

// Flush はバッファをバイナリメッセージとして送信する
func (s *WebSocketSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.buf.Reset()
	return s.conn.WriteMessage(websocket.BinaryMessage, s.buf.Bytes())
}
