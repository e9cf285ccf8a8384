package server

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SPAとして index.html を返すパス
var spaRoutes = []string{"/", "/monitor", "/about"}

// NewControlEngine は制御用ポートのルーティングを作成する
func NewControlEngine(h *Handler, static fs.FS) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(h.logger))

	engine.GET("/health", h.HealthCheck)

	api := engine.Group("/api/v1")
	api.Use(cors())
	{
		api.GET("/openapi.yaml", h.GetOpenAPI)
		api.GET("/system/info", h.GetSystemInfo)

		cam := api.Group("/cam")
		cam.GET("/status", h.GetCameraStatus)
		cam.GET("/capture", h.CaptureImage)
		cam.PUT("/settings", h.UpdateCameraSettings)
		cam.OPTIONS("/settings", preflight)
		cam.GET("/control", h.SetCameraControl)
		cam.GET("/peers", h.GetPeers)
		cam.GET("/streams", h.GetStreams)
	}

	if static != nil {
		registerStatic(engine, static, h.logger)
	}

	engine.NoRoute(func(c *gin.Context) {
		errorJSON(c, http.StatusNotFound, "not_found", "リソースが見つかりません: "+c.Request.URL.Path)
	})
	return engine
}

// NewStreamEngine は配信用ポートのルーティングを作成する
func NewStreamEngine(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/api/v1/cam/stream", h.StreamMJPEG)
	engine.GET("/api/v1/cam/ws", h.StreamWebSocket)
	return engine
}

// registerStatic は静的ファイルとSPAのルートを登録する
func registerStatic(engine *gin.Engine, static fs.FS, logger *slog.Logger) {
	if assets, err := fs.Sub(static, "assets"); err == nil {
		engine.StaticFS("/assets", http.FS(assets))
	}

	index, err := fs.ReadFile(static, "index.html")
	if err != nil {
		logger.Warn("index.html が見つかりません", "error", err)
		return
	}
	serveIndex := func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	}
	for _, path := range spaRoutes {
		engine.GET(path, serveIndex)
	}
}

// cors はブラウザから他オリジンのAPIを呼べるようにする
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}

func preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}

// requestLogger はリクエストごとに1行ログを出す
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && !strings.HasPrefix(path, "/assets") {
			path += "?" + raw
		}
		logger.Log(c.Request.Context(), level, "リクエスト",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		)
	}
}
