// internal/navigation/navigator.go
package navigation

import (
	"github.com/Corphon/HotspotDeck/internal/models"
)

// Mode 会话模式
type Mode string

const (
	ModeAuthor Mode = "author"
	ModePlayer Mode = "player"
)

// Valid 检查模式
func (m Mode) Valid() bool { return m == ModeAuthor || m == ModePlayer }

// ReadOnly 播放模式为只读
func (m Mode) ReadOnly() bool { return m == ModePlayer }

// State 会话选择状态，空字符串表示未选中
// 每次调用都传入并返回新的值
type State struct {
	SequenceID string `json:"sequenceId,omitempty"`
	ContentID  string `json:"contentId,omitempty"`
	HotspotID  string `json:"hotspotId,omitempty"`
	IsPlaying  bool   `json:"isPlaying"`
	CodeView   bool   `json:"codeView"`
}

// Focus 键盘事件发生时的焦点元素
type Focus string

const (
	FocusNone     Focus = ""
	FocusInput    Focus = "input"
	FocusTextarea Focus = "textarea"
)

// 播放模式响应的按键
const (
	KeyArrowRight = "ArrowRight"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowUp    = "ArrowUp"
)

// Navigator 导航引擎，本身无状态
type Navigator struct {
	Mode Mode
}

// New 创建导航引擎
func New(mode Mode) Navigator {
	if !mode.Valid() {
		mode = ModeAuthor
	}
	return Navigator{Mode: mode}
}

// InitialState 初始状态：作者模式不选中任何内容，播放模式选中序列第一项
func (n Navigator) InitialState(doc *models.Document, sequenceID string) State {
	if n.Mode == ModePlayer {
		return n.SelectSequence(doc, State{}, sequenceID)
	}
	return State{}
}

// SelectContent 选中内容并清除热点选中
func (n Navigator) SelectContent(st State, contentID string) State {
	st.ContentID = contentID
	st.HotspotID = ""
	st.CodeView = false
	return st
}

// SelectSequence 切换序列，选中其第一项（为空时不选中）
func (n Navigator) SelectSequence(doc *models.Document, st State, sequenceID string) State {
	st.SequenceID = sequenceID
	first := ""
	if seq, _, ok := doc.Sequence(sequenceID); ok && len(seq.Contents) > 0 {
		first = seq.Contents[0]
	}
	return n.SelectContent(st, first)
}

// SelectHotspot 选中热点，仅作者模式
func (n Navigator) SelectHotspot(st State, hotspotID string) State {
	if n.Mode != ModeAuthor {
		return st
	}
	st.HotspotID = hotspotID
	return st
}

// ActivateHotspot 点击热点：作者模式选中，播放模式执行动作
func (n Navigator) ActivateHotspot(doc *models.Document, st State, h models.Hotspot) State {
	if n.Mode == ModeAuthor {
		return n.SelectHotspot(st, h.ID)
	}
	switch h.Action {
	case models.ActionRoute:
		if h.Target != "" {
			return n.RouteTo(doc, st, h.Target)
		}
	case models.ActionPlay:
		st.IsPlaying = true
	}
	return st
}

// RouteTo 跳转到目标内容，目标不存在时不做任何改变
func (n Navigator) RouteTo(doc *models.Document, st State, targetID string) State {
	if !doc.HasContent(targetID) {
		return st
	}
	return n.SelectContent(st, targetID)
}

// position 当前选中在活动序列中的首次出现位置
func (n Navigator) position(doc *models.Document, st State) (*models.Sequence, int, bool) {
	if st.SequenceID == "" || st.ContentID == "" {
		return nil, 0, false
	}
	seq, _, ok := doc.Sequence(st.SequenceID)
	if !ok {
		return nil, 0, false
	}
	return seq, seq.IndexOf(st.ContentID), true
}

// Next 前进到序列中的下一项
// 选中项不在序列中时视为位置 -1，即跳到第一项
func (n Navigator) Next(doc *models.Document, st State) State {
	seq, idx, ok := n.position(doc, st)
	if !ok || idx >= len(seq.Contents)-1 {
		return st
	}
	return n.SelectContent(st, seq.Contents[idx+1])
}

// Prev 后退到序列中的上一项
func (n Navigator) Prev(doc *models.Document, st State) State {
	seq, idx, ok := n.position(doc, st)
	if !ok || idx <= 0 {
		return st
	}
	return n.SelectContent(st, seq.Contents[idx-1])
}

// CanNext 与 Next 的边界判断一致
func (n Navigator) CanNext(doc *models.Document, st State) bool {
	seq, idx, ok := n.position(doc, st)
	return ok && idx < len(seq.Contents)-1
}

// CanPrev 与 Prev 的边界判断一致
func (n Navigator) CanPrev(doc *models.Document, st State) bool {
	_, idx, ok := n.position(doc, st)
	return ok && idx > 0
}

// HandleKey 播放模式下的方向键导航，输入框获得焦点时忽略
func (n Navigator) HandleKey(doc *models.Document, st State, key string, focus Focus) State {
	if n.Mode != ModePlayer || focus == FocusInput || focus == FocusTextarea {
		return st
	}
	switch key {
	case KeyArrowRight, KeyArrowDown:
		return n.Next(doc, st)
	case KeyArrowLeft, KeyArrowUp:
		return n.Prev(doc, st)
	}
	return st
}

// SetCodeView 切换 HTML 代码视图，只对作者模式下的 HTML 内容有效
func (n Navigator) SetCodeView(doc *models.Document, st State, on bool) State {
	if !on {
		st.CodeView = false
		return st
	}
	if n.Mode != ModeAuthor {
		return st
	}
	c, ok := doc.Content(st.ContentID)
	if !ok || c.Type != models.ContentTypeHTML {
		return st
	}
	st.CodeView = true
	return st
}
