// internal/services/session.go
package services

import (
	"time"

	"github.com/Corphon/HotspotDeck/internal/bridge"
	"github.com/Corphon/HotspotDeck/internal/drawing"
	"github.com/Corphon/HotspotDeck/internal/editor"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/navigation"
)

// Session 一个编辑或播放会话
// 所有字段只在会话锁内访问
type Session struct {
	ID        string
	Mode      navigation.Mode
	CreatedAt time.Time

	lastActive time.Time
	sequenceID string // 播放模式绑定的序列

	doc      *models.Document
	state    navigation.State
	nav      navigation.Navigator
	drawer   *drawing.Drawer
	gesture  *editor.ReorderGesture
	listener *bridge.Listener

	loading bool
	ready   bool
	loadErr error
	dirty   bool
	closed  bool
}

func newSession(id string, mode navigation.Mode, sequenceID string) *Session {
	now := time.Now()
	sess := &Session{
		ID:         id,
		Mode:       mode,
		CreatedAt:  now,
		lastActive: now,
		sequenceID: sequenceID,
		nav:        navigation.New(mode),
		drawer:     drawing.NewDrawer(false),
		gesture:    editor.NewReorderGesture(mode.ReadOnly()),
	}
	sess.listener = bridge.Attach(sess)
	return sess
}

// ReceiveNavigationIntent 嵌入内容请求导航，与 route 热点相同
func (s *Session) ReceiveNavigationIntent(targetID string) {
	if !s.ready {
		return
	}
	s.setState(s.nav.RouteTo(s.doc, s.state, targetID))
}

// setState 更新选择状态并同步绘制状态机
func (s *Session) setState(st navigation.State) {
	if st.ContentID != s.state.ContentID {
		s.drawer.Reset()
	}
	s.state = st
	s.syncDrawer()
}

// syncDrawer 只有作者模式、选中内容且未打开代码视图时允许绘制
func (s *Session) syncDrawer() {
	_, hasContent := s.doc.Content(s.state.ContentID)
	s.drawer.SetEnabled(s.Mode == navigation.ModeAuthor && hasContent && !s.state.CodeView)
}

// applyDocument 替换文档快照，并清理指向已删除内容或热点的选择
func (s *Session) applyDocument(doc *models.Document) {
	s.doc = doc
	s.dirty = true
	st := s.state
	if st.ContentID != "" && !doc.HasContent(st.ContentID) {
		st = s.nav.SelectContent(st, "")
	}
	if st.HotspotID != "" {
		c, _ := doc.Content(st.ContentID)
		if _, _, ok := c.FindHotspot(st.HotspotID); !ok {
			st.HotspotID = ""
		}
	}
	s.setState(st)
}

func (s *Session) currentContent() (*models.Content, bool) {
	return s.doc.Content(s.state.ContentID)
}

// SessionView 会话的只读快照，用于 API 和事件
type SessionView struct {
	ID          string            `json:"id"`
	Mode        navigation.Mode   `json:"mode"`
	Loading     bool              `json:"loading"`
	Ready       bool              `json:"ready"`
	LoadError   string            `json:"loadError,omitempty"`
	Dirty       bool              `json:"dirty"`
	State       navigation.State  `json:"state"`
	Content     *models.Content   `json:"content,omitempty"`
	Sequence    *models.Sequence  `json:"sequence,omitempty"`
	CanNext     bool              `json:"canNext"`
	CanPrev     bool              `json:"canPrev"`
	Drawing     string            `json:"drawing"`
	DrawPreview *models.Rect      `json:"drawPreview,omitempty"`
	Previews    map[string]string `json:"previews,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	LastActive  time.Time         `json:"lastActive"`
}

func (s *Session) view(previews map[string]string) *SessionView {
	v := &SessionView{
		ID:         s.ID,
		Mode:       s.Mode,
		Loading:    s.loading,
		Ready:      s.ready,
		Dirty:      s.dirty,
		State:      s.state,
		Drawing:    s.drawer.State().String(),
		Previews:   previews,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
	if s.loadErr != nil {
		v.LoadError = s.loadErr.Error()
	}
	if !s.ready {
		return v
	}
	if c, ok := s.currentContent(); ok {
		v.Content = c
	}
	if seq, _, ok := s.doc.Sequence(s.state.SequenceID); ok {
		cp := *seq
		v.Sequence = &cp
	}
	v.CanNext = s.nav.CanNext(s.doc, s.state)
	v.CanPrev = s.nav.CanPrev(s.doc, s.state)
	if s.drawer.State() == drawing.Drawing {
		r := s.drawer.Preview()
		v.DrawPreview = &r
	}
	return v
}
