// internal/services/export_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// ExportService 将文档导出为 JSON、YAML 或 Markdown
type ExportService struct {
	fs     *storage.FileStorage
	logger *utils.Logger
}

// NewExportService 创建导出服务；fs 为 nil 时只生成内容不落盘
func NewExportService(fs *storage.FileStorage, logger *utils.Logger) *ExportService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ExportService{fs: fs, logger: logger}
}

// ParseExportFormat 解析格式名，"md" 视为 markdown
func ParseExportFormat(name string) (models.ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return models.ExportJSON, nil
	case "yaml", "yml":
		return models.ExportYAML, nil
	case "markdown", "md":
		return models.ExportMarkdown, nil
	}
	return "", apperrors.NewValidationError(
		fmt.Sprintf("不支持的导出格式: %s，支持的格式: json, yaml, markdown", name), nil)
}

// Export 生成导出内容；save 为 true 时写入导出目录
func (s *ExportService) Export(ctx context.Context, doc *models.Document, format models.ExportFormat, save bool) (*models.ExportResult, error) {
	if doc == nil {
		return nil, apperrors.NewValidationError("文档不能为空", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		content string
		err     error
	)
	switch format {
	case models.ExportJSON:
		content, err = s.formatAsJSON(doc)
	case models.ExportYAML:
		content, err = s.formatAsYAML(doc)
	case models.ExportMarkdown:
		content = s.formatAsMarkdown(doc)
	default:
		return nil, apperrors.NewValidationError("不支持的导出格式: "+string(format), nil)
	}
	if err != nil {
		return nil, apperrors.NewProcessingError("格式化导出内容失败", err)
	}

	result := &models.ExportResult{
		ProjectID:   doc.ProjectID,
		Format:      format,
		Content:     content,
		GeneratedAt: time.Now(),
		Stats:       doc.Stats(),
		Issues:      doc.CheckIntegrity(),
	}

	if save {
		path, size, err := s.saveExport(result, doc)
		if err != nil {
			return nil, apperrors.NewProcessingError("保存导出文件失败", err)
		}
		result.FilePath = path
		result.FileSize = size
		s.logger.Info("Document exported", map[string]interface{}{
			"project_id": doc.ProjectID,
			"format":     format,
			"path":       path,
			"size":       size,
		})
	}
	return result, nil
}

func (s *ExportService) formatAsJSON(doc *models.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("JSON序列化失败: %w", err)
	}
	return string(data), nil
}

func (s *ExportService) formatAsYAML(doc *models.Document) (string, error) {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("YAML序列化失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// formatAsMarkdown 按序列列出内容和热点，便于审阅
func (s *ExportService) formatAsMarkdown(doc *models.Document) string {
	var content strings.Builder
	stats := doc.Stats()

	title := doc.ProjectID
	if title == "" {
		title = "Proyecto"
	}
	content.WriteString(fmt.Sprintf("# %s\n\n", title))
	content.WriteString(fmt.Sprintf("- **序列数**: %d\n", stats.Sequences))
	content.WriteString(fmt.Sprintf("- **内容数**: %d\n", stats.Contents))
	content.WriteString(fmt.Sprintf("- **热点数**: %d\n", stats.Hotspots))
	content.WriteString(fmt.Sprintf("- **HTML 幻灯片**: %d\n", stats.HTML))
	content.WriteString(fmt.Sprintf("- **生成时间**: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	for _, seq := range doc.Sequences {
		content.WriteString(fmt.Sprintf("## %s (`%s`)\n\n", seq.Title, seq.ID))
		if len(seq.Contents) == 0 {
			content.WriteString("_(vacía)_\n\n")
			continue
		}
		for i, id := range seq.Contents {
			c, ok := doc.Content(id)
			if !ok {
				content.WriteString(fmt.Sprintf("%d. ⚠️ `%s` (no existe)\n", i+1, id))
				continue
			}
			content.WriteString(fmt.Sprintf("%d. **%s** `%s` [%s]\n", i+1, c.Title, c.ID, c.Type))
			if c.Src != "" {
				content.WriteString(fmt.Sprintf("   - src: `%s`\n", c.Src))
			}
			for _, h := range c.Hotspots {
				content.WriteString(fmt.Sprintf("   - 🔗 %s `%s` %s", hotspotLabel(h), h.ID, h.Action))
				if h.Target != "" {
					content.WriteString(fmt.Sprintf(" → `%s`", h.Target))
				}
				content.WriteString(fmt.Sprintf(" (%.3f, %.3f, %.3f×%.3f)\n", h.X, h.Y, h.Width, h.Height))
			}
		}
		content.WriteString("\n")
	}

	if issues := doc.CheckIntegrity(); len(issues) > 0 {
		content.WriteString("## 完整性问题\n\n")
		for _, issue := range issues {
			content.WriteString(fmt.Sprintf("- %s: `%s`", issue.Kind, issue.Ref))
			if issue.SequenceID != "" {
				content.WriteString(fmt.Sprintf(" (sequence `%s` #%d)", issue.SequenceID, issue.Position))
			}
			if issue.HotspotID != "" {
				content.WriteString(fmt.Sprintf(" (hotspot `%s` on `%s`)", issue.HotspotID, issue.ContentID))
			}
			content.WriteString("\n")
		}
	}
	return content.String()
}

func hotspotLabel(h models.Hotspot) string {
	if h.Title != "" {
		return h.Title
	}
	return models.DefaultHotspotTitle
}

func exportExtension(format models.ExportFormat) string {
	switch format {
	case models.ExportYAML:
		return "yaml"
	case models.ExportMarkdown:
		return "md"
	}
	return "json"
}

// saveExport 写入导出目录，文件名包含项目 ID 和时间戳
func (s *ExportService) saveExport(result *models.ExportResult, doc *models.Document) (string, int64, error) {
	if s.fs == nil {
		return "", 0, fmt.Errorf("导出目录未配置")
	}
	project := result.ProjectID
	if project == "" {
		project = "project"
	}
	fileName := fmt.Sprintf("%s_%s.%s",
		sanitizeFileName(project), result.GeneratedAt.Format("20060102_150405"), exportExtension(result.Format))

	var err error
	if result.Format == models.ExportJSON {
		err = s.fs.SaveJSONFile("", fileName, doc)
	} else {
		err = s.fs.SaveTextFile("", fileName, []byte(result.Content))
	}
	if err != nil {
		return "", 0, err
	}
	path, err := s.fs.Path("", fileName)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("获取文件信息失败: %w", err)
	}
	return path, info.Size(), nil
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
