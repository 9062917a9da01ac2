// internal/api/response_helpers.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
)

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "资源创建成功"
	}

	c.JSON(http.StatusCreated, response)
}

// sanitizeErrorMessage 去掉错误信息中的本地路径
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
		return "An internal error occurred"
	}
	fields := strings.Fields(message)
	for i, f := range fields {
		if filepath.IsAbs(strings.Trim(f, `"':,`)) {
			fields[i] = "<path>"
		}
	}
	return strings.Join(fields, " ")
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}

	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+"不存在", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// ServiceUnavailable 503错误响应（文档尚未加载）
func (rh *ResponseHelper) ServiceUnavailable(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusServiceUnavailable, ErrorDocumentNotLoaded, message, details...)
}

// FromError 按 AppError 类型选择状态码和错误代码
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	var (
		appErr  *apperrors.AppError
		details string
	)
	if errors.As(err, &appErr) && appErr.Err != nil {
		details = appErr.Err.Error()
	}

	switch {
	case apperrors.IsValidationError(err):
		rh.BadRequest(c, err.Error(), details)
	case apperrors.IsNotFoundError(err):
		resource := ""
		if appErr != nil {
			resource, _, _ = strings.Cut(appErr.Message, " ")
		}
		rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), err.Error())
	case apperrors.IsConflictError(err):
		code := ErrorConflict
		if strings.Contains(err.Error(), "只读") {
			code = ErrorSessionReadOnly
		}
		rh.Error(c, http.StatusConflict, code, err.Error(), details)
	case apperrors.IsUnavailableError(err):
		rh.ServiceUnavailable(c, err.Error(), details)
	default:
		rh.InternalError(c, "处理请求失败", err.Error())
	}
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Length", fmt.Sprintf("%d", len(content)))
	c.String(http.StatusOK, content)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "会话", "session":
		return ErrorSessionNotFound
	case "内容", "content":
		return ErrorContentNotFound
	case "序列", "sequence":
		return ErrorSequenceNotFound
	case "热点", "hotspot":
		return ErrorHotspotNotFound
	case "预览", "preview":
		return ErrorPreviewNotFound
	case "文件", "file":
		return ErrorFileNotFound
	default:
		return ErrorNotFound
	}
}

// ExportResponse 导出响应：download=true 时作为附件返回
func (rh *ResponseHelper) ExportResponse(c *gin.Context, result *models.ExportResult, download bool) {
	if !download {
		rh.Success(c, result, "导出成功")
		return
	}
	filename := filepath.Base(result.FilePath)
	if result.FilePath == "" {
		filename = "project." + string(result.Format)
	}
	switch result.Format {
	case models.ExportMarkdown:
		rh.FileResponse(c, result.Content, filename, "text/markdown; charset=utf-8")
	case models.ExportYAML:
		rh.FileResponse(c, result.Content, filename, "application/yaml; charset=utf-8")
	default:
		rh.FileResponse(c, result.Content, filename, "application/json; charset=utf-8")
	}
}
