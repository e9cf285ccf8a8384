package server

import (
	"context"
	"net/http"
	"time"

	"espcam/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMJPEG はMJPEGストリームを配信する
func (h *Handler) StreamMJPEG(c *gin.Context) {
	sink, err := stream.NewHTTPSink(c.Writer, h.responder.ContentType(), h.cfg.Stream.Framerate)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "streaming_unsupported", "ストリーミングに対応していません")
		return
	}

	sess := h.registry.Open("http", c.ClientIP(), sink)
	h.logger.Info("配信を開始", "session", sess.ID, "remote", sess.Remote)

	err = h.responder.Serve(c.Request.Context(), sess)
	h.registry.Close(sess, err)
	h.logStreamEnd(sess, err)

	// 1フレーム目より前の失敗だけ500を返せる
	if stream.IsHardwareFault(err) {
		sink.Fail(http.StatusInternalServerError)
	}
}

// StreamWebSocket はWebSocketで1パートずつ配信する
func (h *Handler) StreamWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocketへの切り替えに失敗", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// クライアントからのクローズを検知する
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sess := h.registry.Open("websocket", c.ClientIP(), stream.NewWebSocketSink(conn))
	h.logger.Info("配信を開始", "session", sess.ID, "remote", sess.Remote)

	err = h.responder.Serve(ctx, sess)
	h.registry.Close(sess, err)
	h.logStreamEnd(sess, err)

	if stream.IsHardwareFault(err) {
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, stream.Kind(err))
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

func (h *Handler) logStreamEnd(sess *stream.Session, err error) {
	attrs := []any{
		"session", sess.ID,
		"transport", sess.Transport,
		"frames", sess.Frames(),
		"bytes", sess.Bytes(),
		"kind", stream.Kind(err),
		"error", err,
	}
	if stream.IsHardwareFault(err) {
		h.logger.Error("配信を中断", attrs...)
		return
	}
	h.logger.Debug("配信を終了", attrs...)
}
