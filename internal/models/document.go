// internal/models/document.go
package models

import (
	"encoding/json"
	"fmt"
)

// ContentType 内容类型
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
	ContentTypeHTML  ContentType = "html"
)

// Valid 检查内容类型是否受支持
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeImage, ContentTypeVideo, ContentTypeHTML:
		return true
	}
	return false
}

// Document 演示项目文档（project-config.json 的内存形式）
// 快照不可变：编辑操作总是返回新的 Document，未变化的子树共享
type Document struct {
	ProjectID string              `json:"projectId" yaml:"projectId"`
	Sequences []Sequence          `json:"sequences" yaml:"sequences"`
	Contents  map[string]*Content `json:"contents" yaml:"contents"`
}

// Sequence 有序的内容 ID 列表，允许重复 ID，语义按位置
type Sequence struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Contents []string `json:"contents" yaml:"contents"`
}

// Content 一张幻灯片（图片、视频或 HTML）
type Content struct {
	ID           string      `json:"id" yaml:"id"`
	Title        string      `json:"title" yaml:"title"`
	Type         ContentType `json:"type" yaml:"type"`
	Src          string      `json:"src,omitempty" yaml:"src,omitempty"`
	HTML         string      `json:"html,omitempty" yaml:"html,omitempty"`
	AllowScripts bool        `json:"allowScripts,omitempty" yaml:"allowScripts,omitempty"`
	Hotspots     []Hotspot   `json:"hotspots" yaml:"hotspots"`
}

// NewDocument 创建空文档
func NewDocument(projectID string) *Document {
	return &Document{
		ProjectID: projectID,
		Sequences: []Sequence{},
		Contents:  map[string]*Content{},
	}
}

// ParseDocument 从 JSON 解析文档并补齐空集合
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc.normalize()
	return &doc, nil
}

// normalize 保证集合字段非 nil，map 键与内容 ID 一致
func (d *Document) normalize() {
	if d.Sequences == nil {
		d.Sequences = []Sequence{}
	}
	if d.Contents == nil {
		d.Contents = map[string]*Content{}
	}
	for i := range d.Sequences {
		if d.Sequences[i].Contents == nil {
			d.Sequences[i].Contents = []string{}
		}
	}
	for key, c := range d.Contents {
		if c == nil {
			delete(d.Contents, key)
			continue
		}
		if c.ID == "" {
			c.ID = key
		}
		if c.Hotspots == nil {
			c.Hotspots = []Hotspot{}
		}
	}
}

// Content 按 ID 查找内容
func (d *Document) Content(id string) (*Content, bool) {
	if d == nil || id == "" {
		return nil, false
	}
	c, ok := d.Contents[id]
	return c, ok && c != nil
}

// Sequence 按 ID 查找序列，返回下标
func (d *Document) Sequence(id string) (*Sequence, int, bool) {
	if d == nil || id == "" {
		return nil, -1, false
	}
	for i := range d.Sequences {
		if d.Sequences[i].ID == id {
			return &d.Sequences[i], i, true
		}
	}
	return nil, -1, false
}

// HasContent 目标 ID 是否为已注册内容
func (d *Document) HasContent(id string) bool {
	_, ok := d.Content(id)
	return ok
}

// Clone 深拷贝文档
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		ProjectID: d.ProjectID,
		Sequences: make([]Sequence, len(d.Sequences)),
		Contents:  make(map[string]*Content, len(d.Contents)),
	}
	for i, s := range d.Sequences {
		s.Contents = append([]string{}, s.Contents...)
		out.Sequences[i] = s
	}
	for id, c := range d.Contents {
		out.Contents[id] = c.Clone()
	}
	return out
}

// Clone 拷贝内容及其热点列表
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Hotspots = append([]Hotspot{}, c.Hotspots...)
	return &cp
}

// FindHotspot 在内容中查找热点
func (c *Content) FindHotspot(id string) (Hotspot, int, bool) {
	if c == nil {
		return Hotspot{}, -1, false
	}
	for i, h := range c.Hotspots {
		if h.ID == id {
			return h, i, true
		}
	}
	return Hotspot{}, -1, false
}

// IndexOf 返回 ID 在序列中首次出现的位置，不存在返回 -1
func (s *Sequence) IndexOf(id string) int {
	for i, cid := range s.Contents {
		if cid == id {
			return i
		}
	}
	return -1
}

// Stats 文档统计
type Stats struct {
	Sequences int `json:"sequences" yaml:"sequences"`
	Contents  int `json:"contents" yaml:"contents"`
	Hotspots  int `json:"hotspots" yaml:"hotspots"`
	HTML      int `json:"html_slides" yaml:"html_slides"`
}

// Stats 统计文档规模
func (d *Document) Stats() Stats {
	st := Stats{Sequences: len(d.Sequences), Contents: len(d.Contents)}
	for _, c := range d.Contents {
		st.Hotspots += len(c.Hotspots)
		if c.Type == ContentTypeHTML {
			st.HTML++
		}
	}
	return st
}
