// internal/api/session_handlers.go
package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/editor"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/navigation"
	"github.com/Corphon/HotspotDeck/internal/services"
)

// CreateSessionRequest 创建会话
type CreateSessionRequest struct {
	Mode       string `json:"mode"`        // author | player
	SequenceID string `json:"sequence_id"` // 播放模式必填
}

// SelectRequest 选择序列、内容或热点
type SelectRequest struct {
	ID string `json:"id"`
}

// KeyRequest 键盘事件
type KeyRequest struct {
	Key   string `json:"key" binding:"required"`
	Focus string `json:"focus"` // "" | input | textarea
}

// CodeViewRequest 切换代码视图
type CodeViewRequest struct {
	On bool `json:"on"`
}

// TextRequest 修改标题或 HTML
type TextRequest struct {
	Value string `json:"value"`
}

// HotspotRequest 直接按矩形添加热点
type HotspotRequest struct {
	ContentID string      `json:"content_id"`
	Rect      models.Rect `json:"rect"`
	Title     string      `json:"title"`
}

// ReorderRequest 排序
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DragRequest 拖拽手势
type DragRequest struct {
	Index int `json:"index"`
}

// ========================================
// 会话生命周期
// ========================================

// CreateSession 创建编辑或播放会话
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return
	}
	mode := navigation.Mode(strings.ToLower(req.Mode))
	if req.Mode == "" {
		mode = navigation.ModeAuthor
	}
	if !mode.Valid() {
		h.Response.Error(c, http.StatusBadRequest, ErrorInvalidMode, "未知的会话模式: "+req.Mode)
		return
	}

	view, err := h.Sessions.Create(c.Request.Context(), mode, req.SequenceID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, view, "会话创建成功")
}

// ListSessions 列出会话
func (h *Handler) ListSessions(c *gin.Context) {
	h.Response.Success(c, h.Sessions.List())
}

// GetSession 获取会话快照
func (h *Handler) GetSession(c *gin.Context) {
	h.respondView(c)(h.Sessions.Get(c.Param("id")))
}

// DeleteSession 关闭会话并释放预览
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"id": c.Param("id")}, "会话已关闭")
}

// ReloadSession 重新加载文档，丢弃未保存的修改
func (h *Handler) ReloadSession(c *gin.Context) {
	h.respondView(c)(h.Sessions.Reload(c.Request.Context(), c.Param("id")))
}

// ========================================
// 选择与导航
// ========================================

// SelectSequence 选择序列（作者模式）
func (h *Handler) SelectSequence(c *gin.Context) {
	var req SelectRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.SelectSequence(c.Param("id"), req.ID))
}

// SelectContent 选择内容
func (h *Handler) SelectContent(c *gin.Context) {
	var req SelectRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.SelectContent(c.Param("id"), req.ID))
}

// SelectHotspot 选择热点（不触发动作）
func (h *Handler) SelectHotspot(c *gin.Context) {
	var req SelectRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.SelectHotspot(c.Param("id"), req.ID))
}

// ActivateHotspot 触发热点动作
func (h *Handler) ActivateHotspot(c *gin.Context) {
	h.respondView(c)(h.Sessions.ActivateHotspot(c.Param("id"), c.Param("hotspotId")))
}

// Next 下一张
func (h *Handler) Next(c *gin.Context) {
	h.respondView(c)(h.Sessions.Next(c.Param("id")))
}

// Prev 上一张
func (h *Handler) Prev(c *gin.Context) {
	h.respondView(c)(h.Sessions.Prev(c.Param("id")))
}

// HandleKey 键盘导航
func (h *Handler) HandleKey(c *gin.Context) {
	var req KeyRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.HandleKey(c.Param("id"), req.Key, navigation.Focus(strings.ToLower(req.Focus))))
}

// SetCodeView 打开或关闭 HTML 代码视图
func (h *Handler) SetCodeView(c *gin.Context) {
	var req CodeViewRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.SetCodeView(c.Param("id"), req.On))
}

// Pointer 内容区域上的指针事件
func (h *Handler) Pointer(c *gin.Context) {
	var ev services.PointerEvent
	if !h.bind(c, &ev) {
		return
	}
	h.respondEdit(c)(h.Sessions.Pointer(c.Param("id"), ev))
}

// ========================================
// 编辑
// ========================================

// SetContentTitle 修改内容标题
func (h *Handler) SetContentTitle(c *gin.Context) {
	var req TextRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondEdit(c)(h.Sessions.SetContentTitle(c.Param("id"), c.Param("contentId"), req.Value))
}

// SetContentHTML 修改 HTML 幻灯片源码
func (h *Handler) SetContentHTML(c *gin.Context) {
	var req TextRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondEdit(c)(h.Sessions.SetContentHTML(c.Param("id"), c.Param("contentId"), req.Value))
}

// AddHotspot 按矩形添加热点
func (h *Handler) AddHotspot(c *gin.Context) {
	var req HotspotRequest
	if !h.bind(c, &req) {
		return
	}
	draft := editor.HotspotDraft{Rect: req.Rect, Title: req.Title}
	h.respondEdit(c)(h.Sessions.AddHotspot(c.Param("id"), req.ContentID, draft))
}

// UpdateHotspot 替换热点的全部字段
func (h *Handler) UpdateHotspot(c *gin.Context) {
	var hotspot models.Hotspot
	if !h.bind(c, &hotspot) {
		return
	}
	hotspot.ID = c.Param("hotspotId")
	h.respondEdit(c)(h.Sessions.UpdateHotspot(c.Param("id"), c.Query("content_id"), hotspot))
}

// DeleteHotspot 删除热点
func (h *Handler) DeleteHotspot(c *gin.Context) {
	h.respondEdit(c)(h.Sessions.DeleteHotspot(c.Param("id"), c.Query("content_id"), c.Param("hotspotId")))
}

// AddHTMLSlide 添加 HTML 幻灯片
func (h *Handler) AddHTMLSlide(c *gin.Context) {
	h.respondEdit(c)(h.Sessions.AddHTMLSlide(c.Param("id")))
}

// UploadMedia 上传图片或视频
func (h *Handler) UploadMedia(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "获取上传文件失败", err.Error())
		return
	}

	maxBytes := int64(64) << 20
	if cfg := config.GetCurrentConfig(); cfg != nil && cfg.MaxUploadMB > 0 {
		maxBytes = int64(cfg.MaxUploadMB) << 20
	}
	if file.Size > maxBytes {
		h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileInvalid, "文件过大")
		return
	}

	src, err := file.Open()
	if err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorFileUploadFailed, "读取文件失败", err.Error())
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes))
	if err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorFileUploadFailed, "读取文件失败", err.Error())
		return
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") && !strings.HasPrefix(mimeType, "video/") {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "只支持图片或视频文件", mimeType)
		return
	}

	h.respondEdit(c)(h.Sessions.UploadMedia(c.Param("id"), file.Filename, mimeType, data))
}

// ReorderContent 在当前序列内移动条目
func (h *Handler) ReorderContent(c *gin.Context) {
	var req ReorderRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondEdit(c)(h.Sessions.ReorderContent(c.Param("id"), req.From, req.To))
}

// DragStart 开始拖拽
func (h *Handler) DragStart(c *gin.Context) {
	var req DragRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondView(c)(h.Sessions.DragStart(c.Param("id"), req.Index))
}

// DragDrop 放下拖拽的条目
func (h *Handler) DragDrop(c *gin.Context) {
	var req DragRequest
	if !h.bind(c, &req) {
		return
	}
	h.respondEdit(c)(h.Sessions.DragDrop(c.Param("id"), req.Index))
}

// DeleteContent 删除内容
func (h *Handler) DeleteContent(c *gin.Context) {
	h.respondEdit(c)(h.Sessions.DeleteContent(c.Param("id"), c.Param("contentId")))
}

// ========================================
// 保存、完整性、导出
// ========================================

// SaveSession 保存会话文档
func (h *Handler) SaveSession(c *gin.Context) {
	result, err := h.Sessions.Save(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if !result.Success {
		// 内存中的文档保持不变，可以重试
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RepairSession 删除悬空的序列条目
func (h *Handler) RepairSession(c *gin.Context) {
	res, removed, err := h.Sessions.Repair(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"result":  res,
		"removed": removed,
	})
}

// GetIntegrity 完整性报告
func (h *Handler) GetIntegrity(c *gin.Context) {
	issues, err := h.Sessions.Integrity(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if issues == nil {
		issues = []models.IntegrityIssue{}
	}
	h.Response.Success(c, gin.H{
		"ok":     len(issues) == 0,
		"issues": issues,
	})
}

// ExportSession 导出会话文档
func (h *Handler) ExportSession(c *gin.Context) {
	format, err := services.ParseExportFormat(c.DefaultQuery("format", "json"))
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportFormatInvalid, err.Error())
		return
	}
	doc, _, err := h.Sessions.Document(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	save := c.DefaultQuery("save", "false") == "true"
	result, err := h.Export.Export(c.Request.Context(), doc, format, save)
	if err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed, "导出失败", err.Error())
		return
	}
	h.Response.ExportResponse(c, result, c.DefaultQuery("download", "false") == "true")
}

// RenderOverlay 当前内容（或 content_id 指定的内容）的热点叠加图
func (h *Handler) RenderOverlay(c *gin.Context) {
	sessionID := c.Param("id")
	doc, st, err := h.Sessions.Document(sessionID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	contentID := c.DefaultQuery("content_id", st.ContentID)
	content, ok := doc.Content(contentID)
	if !ok {
		h.Response.NotFound(c, "内容")
		return
	}

	opts := services.OverlayOptions{
		Width:      queryInt(c, "width", services.DefaultOverlayWidth),
		Height:     queryInt(c, "height", services.DefaultOverlayHeight),
		Background: c.DefaultQuery("background", "true") == "true",
	}
	if contentID == st.ContentID {
		opts.Selected = st.HotspotID
		if view, err := h.Sessions.Get(sessionID); err == nil {
			opts.Draft = view.DrawPreview
		}
	}

	png, err := h.Render.RenderOverlay(content, opts)
	if err != nil {
		if apperrors.IsValidationError(err) {
			h.Response.FromError(c, err)
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorRenderFailed, "渲染失败", err.Error())
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// ========================================
// 辅助
// ========================================

// bind 解析 JSON 请求体，失败时已写入 400 响应
func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.Response.BadRequest(c, "请求参数错误", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondView(c *gin.Context) func(*services.SessionView, error) {
	return func(view *services.SessionView, err error) {
		if err != nil {
			h.Response.FromError(c, err)
			return
		}
		h.Response.Success(c, view)
	}
}

func (h *Handler) respondEdit(c *gin.Context) func(*services.EditResult, error) {
	return func(res *services.EditResult, err error) {
		if err != nil {
			h.Response.FromError(c, err)
			return
		}
		h.Response.Success(c, res)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
