// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorSessionReadOnly = "SESSION_READ_ONLY"
	ErrorInvalidMode     = "INVALID_MODE"

	// 文档相关错误
	ErrorDocumentNotLoaded = "DOCUMENT_NOT_LOADED"
	ErrorDocumentInvalid   = "DOCUMENT_INVALID"
	ErrorContentNotFound   = "CONTENT_NOT_FOUND"
	ErrorSequenceNotFound  = "SEQUENCE_NOT_FOUND"
	ErrorHotspotNotFound   = "HOTSPOT_NOT_FOUND"
	ErrorHotspotInvalid    = "HOTSPOT_INVALID"
	ErrorReorderInvalid    = "REORDER_INVALID"

	// 文件相关错误
	ErrorFileUploadFailed = "FILE_UPLOAD_FAILED"
	ErrorFileInvalid      = "FILE_INVALID"
	ErrorFileNotFound     = "FILE_NOT_FOUND"
	ErrorPreviewNotFound  = "PREVIEW_NOT_FOUND"

	// 导出相关错误
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
	ErrorRenderFailed        = "RENDER_FAILED"
)
