package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"espcam/internal/camera"
	"espcam/internal/config"
	"espcam/internal/discovery"
	"espcam/internal/stream"

	"github.com/gin-gonic/gin"
	oapi "github.com/oapi-codegen/runtime"
)

// Announcer は設定変更をmDNSへ反映する
type Announcer interface {
	UpdateFramesize(size int)
	Peers() []discovery.Peer
}

// Notifier は状態の変化を通知する
type Notifier interface {
	Notify()
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Streams   int       `json:"streams"`
	Timestamp time.Time `json:"timestamp"`
}

// ChipInfo はCPU情報
type ChipInfo struct {
	Name     string `json:"name"`
	Cores    int    `json:"cores"`
	Features string `json:"features"`
	Revision int    `json:"revision"`
}

// FlashInfo はメモリ情報
type FlashInfo struct {
	Size string `json:"size"`
	Type string `json:"type"`
}

// SystemInfo はシステム情報のレスポンス
type SystemInfo struct {
	Chip  ChipInfo  `json:"chip"`
	Flash FlashInfo `json:"flash"`
}

// Handler はAPIリクエストを処理する
type Handler struct {
	cfg       *config.Config
	driver    camera.Driver
	encoder   camera.Encoder
	responder *stream.Responder
	registry  *stream.Registry
	spec      *apiSpec

	announcer Announcer
	notifier  Notifier
	logger    *slog.Logger
	startedAt time.Time

	// 設定変更は1件ずつ反映する
	settingsMu sync.Mutex
}

// HandlerOption は Handler の設定関数
type HandlerOption func(*Handler)

// WithAnnouncer はmDNSへの反映先を設定する
func WithAnnouncer(a Announcer) HandlerOption {
	return func(h *Handler) {
		h.announcer = a
	}
}

// WithNotifier は状態変化の通知先を設定する
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		h.notifier = n
	}
}

// WithLogger はロガーを設定する
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler は新しい Handler を作成する
func NewHandler(cfg *config.Config, driver camera.Driver, opts ...HandlerOption) (*Handler, error) {
	spec, err := loadAPISpec()
	if err != nil {
		return nil, err
	}

	encoder := camera.NewJPEGEncoder()
	h := &Handler{
		cfg:     cfg,
		driver:  driver,
		encoder: encoder,
		responder: stream.NewResponder(driver, encoder,
			stream.WithQuality(cfg.Stream.Quality),
			stream.WithBoundary(cfg.Stream.Boundary),
		),
		registry:  stream.NewRegistry(),
		spec:      spec,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "handler")
	return h, nil
}

// Registry は配信セッションの管理を返す
func (h *Handler) Registry() *stream.Registry {
	return h.registry
}

// errorJSON はエラーレスポンスを返す
func errorJSON(c *gin.Context, status int, code, message string, details ...string) {
	resp := ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
	if len(details) > 0 {
		d := strings.Join(details, "; ")
		resp.Details = &d
	}
	c.AbortWithStatusJSON(status, resp)
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Streams:   h.registry.Stats().Active,
		Timestamp: time.Now(),
	})
}

// GetSystemInfo はシステム情報を返す
func (h *Handler) GetSystemInfo(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, SystemInfo{
		Chip: ChipInfo{
			Name:     strings.ToUpper(runtime.GOARCH),
			Cores:    runtime.NumCPU(),
			Features: runtime.GOOS + "/" + runtime.Version(),
			Revision: 0,
		},
		Flash: FlashInfo{
			Size: fmt.Sprintf("%dMB", mem.Sys/(1024*1024)),
			Type: "external",
		},
	})
}

// StatusResponse はセンサーの現在値をレスポンス用のマップにする
func StatusResponse(s camera.Sensor) map[string]any {
	info := s.Info()
	st := s.Status()

	resp := map[string]any{
		"board":         info.Board,
		"xclk":          info.XCLKMHz,
		"pixformat":     int(info.PixFormat),
		"led_intensity": -1,
	}
	for _, ctrl := range camera.Controls() {
		resp[ctrl.Name] = ctrl.Get(st)
	}
	return resp
}

// GetCameraStatus はセンサーの現在値を返す
func (h *Handler) GetCameraStatus(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, StatusResponse(h.driver))
}

// CaptureImage は1枚のJPEG画像を返す
func (h *Handler) CaptureImage(c *gin.Context) {
	start := time.Now()

	f, err := h.driver.Acquire(c.Request.Context())
	if err != nil {
		h.logger.Error("キャプチャに失敗", "error", err)
		errorJSON(c, http.StatusInternalServerError, "capture_failed", "カメラからフレームを取得できません")
		return
	}
	defer h.driver.Release(f)

	body := f.Data
	if f.Format != camera.PixFormatJPEG {
		buf, err := h.encoder.Encode(f, h.cfg.Stream.Quality)
		if err != nil {
			h.logger.Error("JPEGへの変換に失敗", "error", err)
			errorJSON(c, http.StatusInternalServerError, "encode_failed", "フレームをJPEGに変換できません")
			return
		}
		defer h.encoder.Free(buf)
		body = buf
	}

	c.Header("Content-Disposition", "inline; filename=capture.jpg")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("X-Timestamp", camera.FormatTimestamp(f.Timestamp))
	c.Data(http.StatusOK, "image/jpeg", body)

	h.logger.Info("JPG", "bytes", len(body), "ms", time.Since(start).Milliseconds())
}

// UpdateCameraSettings はJSONで渡された設定をまとめて反映する
func (h *Handler) UpdateCameraSettings(c *gin.Context) {
	var body any
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_json", "リクエストボディを解析できません", err.Error())
		return
	}
	if err := h.spec.validateSettings(body); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_settings", "設定の形式が不正です", err.Error())
		return
	}

	// スキーマで整数のみのオブジェクトであることを確認済み
	fields := body.(map[string]any)
	values := make(map[string]int, len(fields))
	for name, v := range fields {
		values[name] = int(v.(float64))
	}

	h.applySettings(c, values)
}

// SetCameraControl はクエリで渡された1項目を反映する
func (h *Handler) SetCameraControl(c *gin.Context) {
	query := c.Request.URL.Query()

	var name string
	if err := oapi.BindQueryParameter("form", true, true, "var", query, &name); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_parameter", "var が不正です", err.Error())
		return
	}
	var val int
	if err := oapi.BindQueryParameter("form", true, true, "val", query, &val); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_parameter", "val が不正です", err.Error())
		return
	}

	h.applySettings(c, map[string]int{name: val})
}

// applySettings は全項目を検証してから反映し、反映後の状態を返す
func (h *Handler) applySettings(c *gin.Context, values map[string]int) {
	if err := camera.ValidateAll(values); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_value", "設定値が範囲外です", controlErrorDetails(err)...)
		return
	}

	h.settingsMu.Lock()
	applied, err := camera.ApplyAll(h.driver, values)
	h.settingsMu.Unlock()

	if len(applied) > 0 {
		h.afterApply(applied, values)
	}
	if err != nil {
		h.logger.Error("センサーへの反映に失敗", "error", err, "applied", applied)
		status, code := http.StatusInternalServerError, "sensor_error"
		switch {
		case errors.Is(err, camera.ErrBusy):
			status, code = http.StatusServiceUnavailable, "busy"
		case errors.Is(err, camera.ErrUnsupported):
			code = "unsupported"
		}
		errorJSON(c, status, code, "センサーへの反映に失敗しました", err.Error())
		return
	}

	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, StatusResponse(h.driver))
}

// afterApply はmDNSとテレメトリへ変更を伝える
func (h *Handler) afterApply(applied []string, values map[string]int) {
	h.logger.Info("設定を変更しました", "fields", applied)

	if h.announcer != nil && slices.Contains(applied, "framesize") {
		h.announcer.UpdateFramesize(values["framesize"])
	}
	if h.notifier != nil {
		h.notifier.Notify()
	}
}

// controlErrorDetails は項目ごとのエラーを文字列にする
func controlErrorDetails(err error) []string {
	var details []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			details = append(details, e.Error())
		}
		slices.Sort(details)
		return details
	}
	return []string{err.Error()}
}

// GetPeers はmDNSで見つかったカメラを返す
func (h *Handler) GetPeers(c *gin.Context) {
	peers := []discovery.Peer{}
	if h.announcer != nil {
		peers = append(peers, h.announcer.Peers()...)
	}
	c.JSON(http.StatusOK, peers)
}

// GetStreams は配信セッションの統計を返す
func (h *Handler) GetStreams(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}

// GetOpenAPI は埋め込みのOpenAPI定義を返す
func (h *Handler) GetOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openAPIDocument)
}
