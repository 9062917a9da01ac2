// internal/editor/content.go
package editor

import (
	"path"
	"strings"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
)

const (
	HTMLSlideTitle = "Nueva Diapositiva HTML"
	// MediaPathPrefix 上传媒体在文档中的约定路径
	MediaPathPrefix = "/media/"
)

// htmlSlidePlaceholder 新 HTML 幻灯片的占位内容
const htmlSlidePlaceholder = `
<div style="background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%); color: white; height: 100vh; display: flex; flex-direction: column; align-items: center; justify-content: center; font-family: sans-serif;">
    <h1 style="font-size: 3rem; margin-bottom: 1rem; color: #4ecca3;">Nueva Diapositiva</h1>
    <p style="font-size: 1.2rem; opacity: 0.8;">Edita este contenido en el panel derecho.</p>
    <div style="margin-top: 2rem; padding: 1rem; border: 1px dashed rgba(255,255,255,0.3); border-radius: 8px;">
        Contenido interactivo básico
    </div>
</div>`

// NewHTMLSlide 创建带占位内容的 HTML 幻灯片
func NewHTMLSlide(gen IDGenerator) models.Content {
	if gen == nil {
		gen = UUIDGenerator
	}
	return models.Content{
		ID:           gen(PrefixHTML),
		Title:        HTMLSlideTitle,
		Type:         models.ContentTypeHTML,
		HTML:         htmlSlidePlaceholder,
		AllowScripts: true,
		Hotspots:     []models.Hotspot{},
	}
}

// NewUploadedMedia 根据上传文件创建图片或视频内容
func NewUploadedMedia(filename, mimeType string, gen IDGenerator) models.Content {
	if gen == nil {
		gen = UUIDGenerator
	}
	kind := models.ContentTypeImage
	if strings.HasPrefix(mimeType, "video") {
		kind = models.ContentTypeVideo
	}
	return models.Content{
		ID:       gen(PrefixUpload),
		Title:    TitleFromFilename(filename),
		Type:     kind,
		Src:      MediaPathPrefix + filename,
		Hotspots: []models.Hotspot{},
	}
}

// TitleFromFilename 去掉最后一个扩展名，"Titulo.PNG" → "Titulo"
func TitleFromFilename(filename string) string {
	ext := path.Ext(filename)
	if ext == "" || ext == "." || ext == filename {
		return filename
	}
	return strings.TrimSuffix(filename, ext)
}

// AddContent 注册内容并追加到指定序列末尾
func AddContent(doc *models.Document, sequenceID string, content models.Content) (*models.Document, error) {
	if content.ID == "" {
		return doc, apperrors.NewValidationError("content id is required", nil)
	}
	if !content.Type.Valid() {
		return doc, apperrors.NewValidationError("unknown content type: "+string(content.Type), nil)
	}
	if doc.HasContent(content.ID) {
		return doc, apperrors.NewConflictError("content already exists: "+content.ID, nil)
	}
	if content.Hotspots == nil {
		content.Hotspots = []models.Hotspot{}
	}

	out, err := replaceSequence(doc, sequenceID, func(s models.Sequence) (models.Sequence, error) {
		ids := make([]string, 0, len(s.Contents)+1)
		ids = append(ids, s.Contents...)
		s.Contents = append(ids, content.ID)
		return s, nil
	})
	if err != nil {
		return doc, err
	}
	out = withContents(out)
	out.Contents[content.ID] = &content
	return out, nil
}

// DeleteContent 从注册表和所有序列中移除内容
func DeleteContent(doc *models.Document, contentID string) (*models.Document, error) {
	if !doc.HasContent(contentID) {
		return doc, apperrors.NewMissingRefError("content", contentID)
	}
	out := withContents(doc)
	delete(out.Contents, contentID)

	out.Sequences = make([]models.Sequence, len(doc.Sequences))
	for i, s := range doc.Sequences {
		if s.IndexOf(contentID) < 0 {
			out.Sequences[i] = s
			continue
		}
		ids := make([]string, 0, len(s.Contents))
		for _, id := range s.Contents {
			if id != contentID {
				ids = append(ids, id)
			}
		}
		s.Contents = ids
		out.Sequences[i] = s
	}
	return out, nil
}

// RepairDanglingReferences 删除指向不存在内容的序列条目
// 热点目标保持不变，导航时会忽略无效目标
func RepairDanglingReferences(doc *models.Document) (*models.Document, []models.IntegrityIssue) {
	var removed []models.IntegrityIssue
	for _, issue := range doc.CheckIntegrity() {
		if issue.Kind == models.IssueDanglingSequenceEntry {
			removed = append(removed, issue)
		}
	}
	if len(removed) == 0 {
		return doc, nil
	}

	out := shallow(doc)
	out.Sequences = make([]models.Sequence, len(doc.Sequences))
	for i, s := range doc.Sequences {
		ids := make([]string, 0, len(s.Contents))
		for _, id := range s.Contents {
			if doc.HasContent(id) {
				ids = append(ids, id)
			}
		}
		s.Contents = ids
		out.Sequences[i] = s
	}
	return out, removed
}
