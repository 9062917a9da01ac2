// internal/models/export.go
package models

import (
	"time"
)

// ExportFormat 导出格式
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportYAML     ExportFormat = "yaml"
	ExportMarkdown ExportFormat = "markdown"
)

// ExportResult 导出结果
type ExportResult struct {
	ProjectID   string           `json:"project_id"`
	Format      ExportFormat     `json:"format"`
	Content     string           `json:"content"`
	GeneratedAt time.Time        `json:"generated_at"`
	FilePath    string           `json:"file_path,omitempty"` // 导出文件路径
	FileSize    int64            `json:"file_size"`           // 文件大小
	Stats       Stats            `json:"stats"`
	Issues      []IntegrityIssue `json:"issues,omitempty"`
}

// SaveResult 保存结果，字段与保存接口的响应一致
type SaveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const (
	SaveOKMessage    = "Configuración guardada correctamente."
	SaveErrorMessage = "Error interno al guardar."
)
