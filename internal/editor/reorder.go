// internal/editor/reorder.go
package editor

import (
	"fmt"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
)

// ReorderContent 将序列中 from 位置的条目移动到 to 位置
func ReorderContent(doc *models.Document, sequenceID string, from, to int) (*models.Document, error) {
	seq, _, ok := doc.Sequence(sequenceID)
	if !ok {
		return doc, apperrors.NewMissingRefError("sequence", sequenceID)
	}
	n := len(seq.Contents)
	if from < 0 || from >= n || to < 0 || to >= n {
		return doc, apperrors.NewValidationError(
			fmt.Sprintf("reorder index out of range: from=%d to=%d len=%d", from, to, n), nil)
	}
	if from == to {
		return doc, nil
	}
	return replaceSequence(doc, sequenceID, func(s models.Sequence) (models.Sequence, error) {
		s.Contents = move(s.Contents, from, to)
		return s, nil
	})
}

func move(ids []string, from, to int) []string {
	moved := ids[from]
	out := make([]string, 0, len(ids))
	out = append(out, ids[:from]...)
	out = append(out, ids[from+1:]...)
	out = append(out, "")
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

// ReorderGesture 列表拖拽排序的状态机
type ReorderGesture struct {
	dragging  bool
	fromIndex int
	readOnly  bool
}

// NewReorderGesture 创建拖拽状态机，只读模式下不响应
func NewReorderGesture(readOnly bool) *ReorderGesture {
	return &ReorderGesture{readOnly: readOnly}
}

// Start 开始拖拽
func (g *ReorderGesture) Start(index int) bool {
	if g.readOnly || index < 0 {
		return false
	}
	g.dragging = true
	g.fromIndex = index
	return true
}

// Drop 在 index 处放下，位置不同时返回需要执行的移动
func (g *ReorderGesture) Drop(index int) (from, to int, ok bool) {
	if !g.dragging {
		return 0, 0, false
	}
	from = g.fromIndex
	g.Cancel()
	if g.readOnly || index < 0 || from == index {
		return 0, 0, false
	}
	return from, index, true
}

// Cancel 放弃当前拖拽
func (g *ReorderGesture) Cancel() {
	g.dragging = false
	g.fromIndex = -1
}

// Dragging 是否正在拖拽
func (g *ReorderGesture) Dragging() (int, bool) {
	return g.fromIndex, g.dragging
}
