// internal/editor/editor.go
package editor

import (
	"github.com/google/uuid"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
)

// 编辑引擎：所有函数都是纯函数，不修改输入文档及其可达的任何值。
// 引用不存在时返回原文档和 NotFound 错误，调用方可将其视为无操作。

// IDGenerator 生成带前缀的新 ID
type IDGenerator func(prefix string) string

// UUIDGenerator 默认 ID 生成器
func UUIDGenerator(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

const (
	PrefixHotspot = "h"
	PrefixHTML    = "html"
	PrefixUpload  = "content"
)

// HotspotDraft 绘制得到的热点草稿
type HotspotDraft struct {
	Rect  models.Rect `json:"rect"`
	Title string      `json:"title"`
}

// shallow 复制文档外壳，集合仍共享
func shallow(doc *models.Document) *models.Document {
	cp := *doc
	return &cp
}

// withContents 复制内容注册表（指针共享）
func withContents(doc *models.Document) *models.Document {
	out := shallow(doc)
	out.Contents = make(map[string]*models.Content, len(doc.Contents)+1)
	for k, v := range doc.Contents {
		out.Contents[k] = v
	}
	return out
}

// replaceContent 用 fn 的结果替换单个内容，其他内容保持共享
func replaceContent(doc *models.Document, contentID string, fn func(c models.Content) (models.Content, error)) (*models.Document, error) {
	c, ok := doc.Content(contentID)
	if !ok {
		return doc, apperrors.NewMissingRefError("content", contentID)
	}
	updated, err := fn(*c)
	if err != nil {
		return doc, err
	}
	out := withContents(doc)
	out.Contents[contentID] = &updated
	return out, nil
}

// replaceSequence 替换单个序列，其他序列按值共享底层切片
func replaceSequence(doc *models.Document, sequenceID string, fn func(s models.Sequence) (models.Sequence, error)) (*models.Document, error) {
	seq, idx, ok := doc.Sequence(sequenceID)
	if !ok {
		return doc, apperrors.NewMissingRefError("sequence", sequenceID)
	}
	updated, err := fn(*seq)
	if err != nil {
		return doc, err
	}
	out := shallow(doc)
	out.Sequences = make([]models.Sequence, len(doc.Sequences))
	copy(out.Sequences, doc.Sequences)
	out.Sequences[idx] = updated
	return out, nil
}

// SetContentTitle 修改内容标题
func SetContentTitle(doc *models.Document, contentID, title string) (*models.Document, error) {
	return replaceContent(doc, contentID, func(c models.Content) (models.Content, error) {
		c.Title = title
		return c, nil
	})
}

// SetContentHTML 修改 HTML 内容，不检查内容类型
func SetContentHTML(doc *models.Document, contentID, html string) (*models.Document, error) {
	return replaceContent(doc, contentID, func(c models.Content) (models.Content, error) {
		c.HTML = html
		return c, nil
	})
}

// AddHotspot 追加新热点，返回新文档和新热点 ID
func AddHotspot(doc *models.Document, contentID string, draft HotspotDraft, gen IDGenerator) (*models.Document, string, error) {
	if !draft.Rect.Valid() {
		return doc, "", apperrors.NewValidationError("hotspot geometry must lie within [0,1] with positive size", nil)
	}
	if gen == nil {
		gen = UUIDGenerator
	}
	var id string
	out, err := replaceContent(doc, contentID, func(c models.Content) (models.Content, error) {
		id = gen(PrefixHotspot)
		h := models.Hotspot{
			ID:     id,
			X:      draft.Rect.X,
			Y:      draft.Rect.Y,
			Width:  draft.Rect.Width,
			Height: draft.Rect.Height,
			Action: models.ActionRoute,
			Title:  draft.Title,
		}
		hs := make([]models.Hotspot, 0, len(c.Hotspots)+1)
		hs = append(hs, c.Hotspots...)
		c.Hotspots = append(hs, h)
		return c, nil
	})
	if err != nil {
		return doc, "", err
	}
	return out, id, nil
}

// UpdateHotspot 替换所属内容中 ID 相同的热点
func UpdateHotspot(doc *models.Document, contentID string, hotspot models.Hotspot) (*models.Document, error) {
	if !hotspot.Rect().Valid() {
		return doc, apperrors.NewValidationError("hotspot geometry must lie within [0,1] with positive size", nil)
	}
	if !hotspot.Action.Valid() {
		return doc, apperrors.NewValidationError("unknown hotspot action: "+string(hotspot.Action), nil)
	}
	return replaceContent(doc, contentID, func(c models.Content) (models.Content, error) {
		_, idx, ok := c.FindHotspot(hotspot.ID)
		if !ok {
			return c, apperrors.NewMissingRefError("hotspot", hotspot.ID)
		}
		hs := make([]models.Hotspot, len(c.Hotspots))
		copy(hs, c.Hotspots)
		hs[idx] = hotspot
		c.Hotspots = hs
		return c, nil
	})
}

// DeleteHotspot 删除热点，其余热点顺序不变
func DeleteHotspot(doc *models.Document, contentID, hotspotID string) (*models.Document, error) {
	return replaceContent(doc, contentID, func(c models.Content) (models.Content, error) {
		if _, _, ok := c.FindHotspot(hotspotID); !ok {
			return c, apperrors.NewMissingRefError("hotspot", hotspotID)
		}
		hs := make([]models.Hotspot, 0, len(c.Hotspots))
		for _, h := range c.Hotspots {
			if h.ID != hotspotID {
				hs = append(hs, h)
			}
		}
		c.Hotspots = hs
		return c, nil
	})
}
