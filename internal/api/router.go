// internal/api/router.go
package api

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/di"
	"github.com/Corphon/HotspotDeck/internal/services"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// SetupRouter 从全局容器取出服务并配置HTTP路由
func SetupRouter() (*gin.Engine, *RateLimiter, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// ✅ 只从容器获取服务，不再创建新实例
	documents, err := di.Resolve[*services.DocumentService](container, di.ServiceDocuments)
	if err != nil {
		return nil, nil, fmt.Errorf("文档服务未正确初始化: %w", err)
	}
	sessions, err := di.Resolve[*services.SessionService](container, di.ServiceSessions)
	if err != nil {
		return nil, nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}
	previews, err := di.Resolve[*services.PreviewRegistry](container, di.ServicePreviews)
	if err != nil {
		return nil, nil, fmt.Errorf("预览服务未正确初始化: %w", err)
	}
	export, err := di.Resolve[*services.ExportService](container, di.ServiceExport)
	if err != nil {
		return nil, nil, fmt.Errorf("导出服务未正确初始化: %w", err)
	}
	render, err := di.Resolve[*services.RenderService](container, di.ServiceRender)
	if err != nil {
		return nil, nil, fmt.Errorf("渲染服务未正确初始化: %w", err)
	}
	wsManager, err := di.Resolve[*WebSocketManager](container, di.ServiceEvents)
	if err != nil {
		return nil, nil, fmt.Errorf("事件服务未正确初始化: %w", err)
	}
	metrics, _ := di.Resolve[*utils.DeckMetrics](container, di.ServiceMetrics)
	logger, _ := di.Resolve[*utils.Logger](container, di.ServiceLogger)

	handler := NewHandler(documents, sessions, previews, export, render, wsManager, metrics, logger)
	limiter := NewRateLimiter()
	return NewRouter(handler, cfg, limiter), limiter, nil
}

// corsMiddleware 按配置的来源放行跨域请求
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:        12 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, cfg *config.AppConfig, limiter *RateLimiter) *gin.Engine {
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(handler.Logger, handler.Metrics))
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	saveLimit := limiter.ByIP(cfg.SaveRateLimit, time.Minute)

	// 规范文档的读写，与播放器/编辑器前端约定的路径
	r.GET("/project-config.json", handler.GetProjectConfig)
	r.POST("/api/save-config", saveLimit, handler.SaveProjectConfig)

	// 媒体
	if cfg.MediaDir != "" {
		if err := os.MkdirAll(cfg.MediaDir, 0755); err == nil {
			r.Static("/media", cfg.MediaDir)
		}
	}
	r.GET("/preview/:handle", handler.GetPreview)

	// WebSocket 支持
	r.GET("/ws/sessions/:id", handler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.GetMetrics)

		wsGroup := api.Group("/ws")
		{
			wsGroup.GET("/status", handler.GetWebSocketStatus)
			wsGroup.POST("/cleanup", handler.CleanupWebSocketConnections)
		}

		// ===============================
		// 会话相关路由
		// ===============================
		sessions := api.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("", handler.ListSessions)
			sessions.GET("/:id", handler.GetSession)
			sessions.DELETE("/:id", handler.DeleteSession)
			sessions.POST("/:id/reload", handler.ReloadSession)

			// 选择与导航
			sessions.POST("/:id/sequence", handler.SelectSequence)
			sessions.POST("/:id/content", handler.SelectContent)
			sessions.POST("/:id/hotspot", handler.SelectHotspot)
			sessions.POST("/:id/hotspots/:hotspotId/activate", handler.ActivateHotspot)
			sessions.POST("/:id/next", handler.Next)
			sessions.POST("/:id/prev", handler.Prev)
			sessions.POST("/:id/key", handler.HandleKey)
			sessions.POST("/:id/codeview", handler.SetCodeView)
			sessions.POST("/:id/pointer", handler.Pointer)

			// 编辑
			sessions.PUT("/:id/contents/:contentId/title", handler.SetContentTitle)
			sessions.PUT("/:id/contents/:contentId/html", handler.SetContentHTML)
			sessions.DELETE("/:id/contents/:contentId", handler.DeleteContent)
			sessions.POST("/:id/hotspots", handler.AddHotspot)
			sessions.PUT("/:id/hotspots/:hotspotId", handler.UpdateHotspot)
			sessions.DELETE("/:id/hotspots/:hotspotId", handler.DeleteHotspot)
			sessions.POST("/:id/slides", handler.AddHTMLSlide)
			sessions.POST("/:id/upload", handler.UploadMedia)
			sessions.POST("/:id/reorder", handler.ReorderContent)
			sessions.POST("/:id/drag/start", handler.DragStart)
			sessions.POST("/:id/drag/drop", handler.DragDrop)

			// 保存与导出
			sessions.POST("/:id/save", saveLimit, handler.SaveSession)
			sessions.POST("/:id/repair", handler.RepairSession)
			sessions.GET("/:id/integrity", handler.GetIntegrity)
			sessions.GET("/:id/export", handler.ExportSession)
			sessions.GET("/:id/overlay.png", handler.RenderOverlay)
		}
	}

	return r
}
