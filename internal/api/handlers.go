// internal/api/handlers.go
package api

import (
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/services"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// maxConfigBody 保存接口接受的最大请求体
const maxConfigBody = 32 << 20

// Handler 处理API请求
type Handler struct {
	// 核心服务
	Documents *services.DocumentService // 规范文档的读写
	Sessions  *services.SessionService  // 编辑/播放会话
	Previews  *services.PreviewRegistry // 上传媒体的临时预览
	Export    *services.ExportService   // 导出
	Render    *services.RenderService   // 热点叠加图

	Metrics          *utils.DeckMetrics
	Logger           *utils.Logger
	WebSocketManager *WebSocketManager
	WebSocketHandler *WebSocketHandler // WebSocket 处理器
	Response         *ResponseHelper   // 响应助手

	startedAt time.Time
}

// NewHandler 创建处理器
func NewHandler(
	documents *services.DocumentService,
	sessions *services.SessionService,
	previews *services.PreviewRegistry,
	export *services.ExportService,
	render *services.RenderService,
	wsManager *WebSocketManager,
	metrics *utils.DeckMetrics,
	logger *utils.Logger) *Handler {

	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Handler{
		Documents:        documents,
		Sessions:         sessions,
		Previews:         previews,
		Export:           export,
		Render:           render,
		Metrics:          metrics,
		Logger:           logger,
		WebSocketManager: wsManager,
		WebSocketHandler: NewWebSocketHandler(sessions, wsManager, logger),
		Response:         NewResponseHelper(),
		startedAt:        time.Now(),
	}
}

// ========================================
// 规范文档
// ========================================

// GetProjectConfig 返回规范文档的原始 JSON
func (h *Handler) GetProjectConfig(c *gin.Context) {
	raw, err := h.Documents.LoadRaw(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// SaveProjectConfig 用请求体覆盖规范文档
// 响应体固定为 {success, message}，不使用通用信封
func (h *Handler) SaveProjectConfig(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBody))
	if err != nil {
		h.Logger.Error("Error reading config body", map[string]interface{}{"error": err})
		c.JSON(http.StatusInternalServerError, models.SaveResult{Success: false, Message: models.SaveErrorMessage})
		return
	}

	result := h.Documents.SaveRaw(c.Request.Context(), raw)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ========================================
// 媒体预览
// ========================================

// GetPreview 按句柄返回上传媒体的临时预览
func (h *Handler) GetPreview(c *gin.Context) {
	handle, path, ok := h.Previews.Lookup(c.Param("handle"))
	if !ok {
		h.Response.NotFound(c, "预览")
		return
	}
	if handle.MimeType != "" {
		c.Header("Content-Type", handle.MimeType)
	}
	c.Header("Cache-Control", "no-store")
	c.File(path)
}

// ========================================
// 运行状态
// ========================================

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	status := gin.H{
		"status":   "ok",
		"uptime_s": int64(time.Since(h.startedAt).Seconds()),
		"sessions": h.Sessions.Count(),
		"previews": h.Previews.Count(),
	}
	if h.Documents != nil {
		status["repository"] = h.Documents.Repository().Name()
	}
	if cfg != nil {
		status["storage_backend"] = cfg.StorageBackend
	}
	h.Response.Success(c, status)
}

// GetMetrics 运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := gin.H{
		"runtime": gin.H{
			"goroutines":     runtime.NumGoroutine(),
			"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
			"num_gc":         mem.NumGC,
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		},
	}
	if h.Metrics != nil {
		data["app"] = h.Metrics.Collector().GetMetrics()
	}
	if h.WebSocketManager != nil {
		data["websocket"] = h.WebSocketManager.GetStatus()
	}
	h.Response.Success(c, data)
}

// GetWebSocketStatus 获取 WebSocket 连接状态（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := h.WebSocketManager.GetStatus()
	status["timestamp"] = time.Now().Format(time.RFC3339)
	c.JSON(http.StatusOK, status)
}

// CleanupWebSocketConnections 手动清理过期连接
func (h *Handler) CleanupWebSocketConnections(c *gin.Context) {
	removed := h.WebSocketManager.cleanupExpiredConnections()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "连接清理已执行",
		"removed":   removed,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// SessionWebSocket 处理会话 WebSocket 连接
func (h *Handler) SessionWebSocket(c *gin.Context) {
	h.WebSocketHandler.SessionWebSocket(c)
}
