// internal/services/session_service.go
package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/HotspotDeck/internal/drawing"
	"github.com/Corphon/HotspotDeck/internal/editor"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/navigation"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// 会话事件
const (
	EventStateChanged    = "state:changed"
	EventDocumentChanged = "document:changed"
	EventSessionClosed   = "session:closed"
)

// EventPublisher 会话事件的出口（WebSocket 管理器实现）
type EventPublisher interface {
	PublishToSession(sessionID, event string, payload interface{})
}

// EditResult 编辑操作的结果；引用不存在时 Applied 为 false
type EditResult struct {
	Applied bool         `json:"applied"`
	Reason  string       `json:"reason,omitempty"`
	NewID   string       `json:"newId,omitempty"`
	Session *SessionView `json:"session"`
}

// PointerEvent 指针事件
type PointerEvent struct {
	Kind   string         `json:"kind"` // down | move | up | leave | click
	Point  drawing.Point  `json:"point"`
	Canvas drawing.Canvas `json:"canvas"`
}

// SessionService 管理会话，每个会话内的操作串行执行
type SessionService struct {
	docs     *DocumentService
	previews *PreviewRegistry
	locks    *LockManager
	metrics  *utils.DeckMetrics
	logger   *utils.Logger
	idGen    editor.IDGenerator

	mu        sync.RWMutex
	sessions  map[string]*Session
	publisher EventPublisher
}

// NewSessionService 创建会话服务
func NewSessionService(docs *DocumentService, previews *PreviewRegistry, locks *LockManager, metrics *utils.DeckMetrics, logger *utils.Logger) *SessionService {
	if locks == nil {
		locks = NewLockManager()
	}
	if metrics == nil {
		metrics = utils.NewDeckMetrics()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &SessionService{
		docs:     docs,
		previews: previews,
		locks:    locks,
		metrics:  metrics,
		logger:   logger,
		idGen:    editor.UUIDGenerator,
		sessions: make(map[string]*Session),
	}
}

// SetPublisher 设置事件出口
func (s *SessionService) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

// SetIDGenerator 替换内容和热点 ID 生成器
func (s *SessionService) SetIDGenerator(gen editor.IDGenerator) {
	s.idGen = gen
}

func (s *SessionService) publish(sessionID, event string, payload interface{}) {
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()
	if p != nil {
		p.PublishToSession(sessionID, event, payload)
	}
}

// Create 创建会话并同步加载文档；加载失败时会话保留但不可用
func (s *SessionService) Create(ctx context.Context, mode navigation.Mode, sequenceID string) (*SessionView, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError("未知的会话模式: "+string(mode), nil)
	}
	if mode == navigation.ModePlayer && sequenceID == "" {
		return nil, apperrors.NewValidationError("播放模式需要指定序列", nil)
	}

	sess := newSession(uuid.NewString(), mode, sequenceID)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.metrics.SessionOpened()

	s.logger.Info("Session created", map[string]interface{}{
		"session_id": sess.ID,
		"mode":       mode,
		"sequence":   sequenceID,
	})

	var view *SessionView
	err := s.locks.ExecuteWithSessionLock(sess.ID, func() error {
		s.load(ctx, sess)
		view = s.viewOf(sess)
		return nil
	})
	return view, err
}

// load 在会话锁内调用
func (s *SessionService) load(ctx context.Context, sess *Session) {
	sess.loading = true
	doc, err := s.docs.Load(ctx)
	sess.loading = false
	if err != nil {
		sess.ready = false
		sess.loadErr = err
		return
	}
	sess.doc = doc
	sess.ready = true
	sess.loadErr = nil
	sess.dirty = false
	sess.setState(sess.nav.InitialState(doc, sess.sequenceID))
}

// Reload 重新加载文档，丢弃未保存的修改
func (s *SessionService) Reload(ctx context.Context, sessionID string) (*SessionView, error) {
	var view *SessionView
	err := s.withSession(sessionID, false, func(sess *Session) error {
		s.load(ctx, sess)
		view = s.viewOf(sess)
		return nil
	})
	if err == nil && view.Ready {
		s.publish(sessionID, EventDocumentChanged, view)
	}
	return view, err
}

// Get 会话快照
func (s *SessionService) Get(sessionID string) (*SessionView, error) {
	var view *SessionView
	err := s.withSession(sessionID, false, func(sess *Session) error {
		view = s.viewOf(sess)
		return nil
	})
	return view, err
}

// List 所有会话快照
func (s *SessionService) List() []*SessionView {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*SessionView, 0, len(ids))
	for _, id := range ids {
		if v, err := s.Get(id); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Count 会话数量
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close 关闭会话：停止消息监听并释放所有预览
func (s *SessionService) Close(sessionID string) error {
	err := s.withSession(sessionID, false, func(sess *Session) error {
		sess.closed = true
		sess.listener.Close()
		sess.drawer.SetEnabled(false)
		released := s.previews.ReleaseAll(sessionID)
		s.logger.Info("Session closed", map[string]interface{}{
			"session_id":        sessionID,
			"previews_released": released,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.locks.Forget(sessionID)
	s.metrics.SessionClosed()
	s.publish(sessionID, EventSessionClosed, map[string]string{"id": sessionID})
	return nil
}

// CloseAll 关闭全部会话（服务停止时）
func (s *SessionService) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		_ = s.Close(id)
	}
}

// CleanupIdle 关闭长时间不活跃的会话
func (s *SessionService) CleanupIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.RLock()
	all := make(map[string]*Session, len(s.sessions))
	for id, sess := range s.sessions {
		all[id] = sess
	}
	s.mu.RUnlock()

	closed := 0
	for id, sess := range all {
		var stale bool
		_ = s.locks.ExecuteWithSessionLock(id, func() error {
			stale = sess.lastActive.Before(cutoff)
			return nil
		})
		if stale && s.Close(id) == nil {
			closed++
		}
	}
	return closed
}

// withSession 在会话锁内执行 fn；needReady 时要求文档已加载
func (s *SessionService) withSession(sessionID string, needReady bool, fn func(sess *Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return apperrors.NewMissingRefError("session", sessionID)
	}
	return s.locks.ExecuteWithSessionLock(sessionID, func() error {
		if sess.closed {
			return apperrors.NewMissingRefError("session", sessionID)
		}
		if needReady && !sess.ready {
			return apperrors.NewUnavailableError("项目文档尚未加载", sess.loadErr)
		}
		sess.lastActive = time.Now()
		return fn(sess)
	})
}

func (s *SessionService) viewOf(sess *Session) *SessionView {
	var previews map[string]string
	if s.previews != nil {
		previews = s.previews.URLs(sess.ID)
	}
	return sess.view(previews)
}

// navigate 执行一次选择变更并发布状态事件
func (s *SessionService) navigate(sessionID, kind string, fn func(sess *Session) navigation.State) (*SessionView, error) {
	var (
		view    *SessionView
		changed bool
	)
	err := s.withSession(sessionID, true, func(sess *Session) error {
		before := sess.state
		sess.setState(fn(sess))
		changed = before != sess.state
		view = s.viewOf(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordNavigation(kind)
		s.publish(sessionID, EventStateChanged, view)
	}
	return view, nil
}

// SelectSequence 切换序列（作者模式）
func (s *SessionService) SelectSequence(sessionID, sequenceID string) (*SessionView, error) {
	return s.navigate(sessionID, "select_sequence", func(sess *Session) navigation.State {
		if sess.Mode == navigation.ModePlayer {
			return sess.state
		}
		return sess.nav.SelectSequence(sess.doc, sess.state, sequenceID)
	})
}

// SelectContent 选中内容
func (s *SessionService) SelectContent(sessionID, contentID string) (*SessionView, error) {
	return s.navigate(sessionID, "select_content", func(sess *Session) navigation.State {
		return sess.nav.SelectContent(sess.state, contentID)
	})
}

// SelectHotspot 选中热点（作者模式），空字符串取消选中
func (s *SessionService) SelectHotspot(sessionID, hotspotID string) (*SessionView, error) {
	return s.navigate(sessionID, "select_hotspot", func(sess *Session) navigation.State {
		return sess.nav.SelectHotspot(sess.state, hotspotID)
	})
}

// ActivateHotspot 点击当前内容上的热点
func (s *SessionService) ActivateHotspot(sessionID, hotspotID string) (*SessionView, error) {
	return s.navigate(sessionID, "hotspot", func(sess *Session) navigation.State {
		c, _ := sess.currentContent()
		h, _, ok := c.FindHotspot(hotspotID)
		if !ok {
			return sess.state
		}
		return sess.nav.ActivateHotspot(sess.doc, sess.state, h)
	})
}

// Next 下一项
func (s *SessionService) Next(sessionID string) (*SessionView, error) {
	return s.navigate(sessionID, "next", func(sess *Session) navigation.State {
		return sess.nav.Next(sess.doc, sess.state)
	})
}

// Prev 上一项
func (s *SessionService) Prev(sessionID string) (*SessionView, error) {
	return s.navigate(sessionID, "prev", func(sess *Session) navigation.State {
		return sess.nav.Prev(sess.doc, sess.state)
	})
}

// HandleKey 键盘导航（播放模式）
func (s *SessionService) HandleKey(sessionID, key string, focus navigation.Focus) (*SessionView, error) {
	return s.navigate(sessionID, "key", func(sess *Session) navigation.State {
		return sess.nav.HandleKey(sess.doc, sess.state, key, focus)
	})
}

// SetCodeView 切换 HTML 代码视图，打开时禁止绘制
func (s *SessionService) SetCodeView(sessionID string, on bool) (*SessionView, error) {
	return s.navigate(sessionID, "code_view", func(sess *Session) navigation.State {
		return sess.nav.SetCodeView(sess.doc, sess.state, on)
	})
}

// HandleBridgeMessage 处理嵌入内容发来的消息，返回是否被接受
func (s *SessionService) HandleBridgeMessage(sessionID string, raw []byte) (bool, error) {
	var (
		accepted bool
		changed  bool
		view     *SessionView
	)
	err := s.withSession(sessionID, true, func(sess *Session) error {
		before := sess.state
		accepted = sess.listener.Handle(raw)
		changed = before != sess.state
		view = s.viewOf(sess)
		return nil
	})
	if err != nil {
		return false, err
	}
	s.metrics.RecordBridgeMessage(accepted)
	if changed {
		s.metrics.RecordNavigation("bridge")
		s.publish(sessionID, EventStateChanged, view)
	}
	return accepted, nil
}

// Pointer 处理内容区域上的指针事件
// 作者模式下 down/move/up/leave 驱动热点绘制；click 在任意模式下命中热点
func (s *SessionService) Pointer(sessionID string, ev PointerEvent) (*EditResult, error) {
	var (
		res      = &EditResult{}
		docEvent bool
	)
	err := s.withSession(sessionID, true, func(sess *Session) error {
		switch ev.Kind {
		case "down":
			if sess.drawer.PointerDown(ev.Point, ev.Canvas) {
				sess.setState(sess.nav.SelectHotspot(sess.state, ""))
			}
		case "move":
			sess.drawer.PointerMove(ev.Point, ev.Canvas)
		case "leave":
			sess.drawer.PointerLeave()
		case "up":
			draft, ok := sess.drawer.PointerUp()
			if !ok {
				break
			}
			if !draft.Rect.Valid() {
				s.logger.Debug("Hotspot draft discarded", map[string]interface{}{"rect": draft.Rect})
				break
			}
			doc, id, err := editor.AddHotspot(sess.doc, sess.state.ContentID, draft, s.idGen)
			if err != nil {
				if e := s.editError(res, "add_hotspot", err); e != nil {
					return e
				}
				break
			}
			sess.applyDocument(doc)
			sess.setState(sess.nav.SelectHotspot(sess.state, id))
			res.Applied, res.NewID, docEvent = true, id, true
			s.metrics.RecordEdit("add_hotspot", true)
		case "click":
			c, ok := sess.currentContent()
			if !ok {
				break
			}
			p := ev.Canvas.Normalize(ev.Point)
			if h, hit := c.HitTest(p.X, p.Y); hit {
				sess.setState(sess.nav.ActivateHotspot(sess.doc, sess.state, h))
				res.Applied = true
			}
		default:
			return apperrors.NewValidationError("未知的指针事件: "+ev.Kind, nil)
		}
		res.Session = s.viewOf(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if docEvent {
		s.publish(sessionID, EventDocumentChanged, res.Session)
	} else if res.Applied {
		s.publish(sessionID, EventStateChanged, res.Session)
	}
	return res, nil
}

// editError 把缺失引用转换为未应用的结果，其他错误原样返回
func (s *SessionService) editError(res *EditResult, op string, err error) error {
	if apperrors.IsNotFoundError(err) {
		s.metrics.RecordEdit(op, false)
		s.logger.Debug("Edit skipped", map[string]interface{}{"op": op, "reason": err.Error()})
		res.Applied = false
		res.Reason = err.Error()
		return nil
	}
	return err
}

// edit 在作者会话中执行一次文档编辑
func (s *SessionService) edit(sessionID, op string, fn func(sess *Session) (*models.Document, string, error)) (*EditResult, error) {
	res := &EditResult{}
	err := s.withSession(sessionID, true, func(sess *Session) error {
		if sess.Mode.ReadOnly() {
			return apperrors.NewConflictError("播放会话是只读的", nil)
		}
		before := sess.doc
		doc, newID, err := fn(sess)
		if err != nil {
			if e := s.editError(res, op, err); e != nil {
				return e
			}
			res.Session = s.viewOf(sess)
			return nil
		}
		if doc != before {
			if doc != sess.doc {
				sess.applyDocument(doc)
			}
			res.Applied = true
		}
		res.NewID = newID
		s.metrics.RecordEdit(op, res.Applied)
		res.Session = s.viewOf(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Applied {
		s.publish(sessionID, EventDocumentChanged, res.Session)
	}
	return res, nil
}

// SetContentTitle 修改内容标题
func (s *SessionService) SetContentTitle(sessionID, contentID, title string) (*EditResult, error) {
	return s.edit(sessionID, "set_title", func(sess *Session) (*models.Document, string, error) {
		doc, err := editor.SetContentTitle(sess.doc, contentID, title)
		return doc, "", err
	})
}

// SetContentHTML 修改 HTML 内容
func (s *SessionService) SetContentHTML(sessionID, contentID, html string) (*EditResult, error) {
	return s.edit(sessionID, "set_html", func(sess *Session) (*models.Document, string, error) {
		doc, err := editor.SetContentHTML(sess.doc, contentID, html)
		return doc, "", err
	})
}

// AddHotspot 直接按矩形添加热点并选中
func (s *SessionService) AddHotspot(sessionID, contentID string, draft editor.HotspotDraft) (*EditResult, error) {
	return s.edit(sessionID, "add_hotspot", func(sess *Session) (*models.Document, string, error) {
		if !draft.Rect.Valid() {
			return sess.doc, "", apperrors.NewValidationError("热点矩形超出 [0,1] 范围或尺寸为零", nil)
		}
		if contentID == "" {
			contentID = sess.state.ContentID
		}
		doc, id, err := editor.AddHotspot(sess.doc, contentID, draft, s.idGen)
		if err == nil && contentID == sess.state.ContentID {
			sess.applyDocument(doc)
			sess.setState(sess.nav.SelectHotspot(sess.state, id))
		}
		return doc, id, err
	})
}

// UpdateHotspot 替换热点；contentID 为空时使用当前内容
func (s *SessionService) UpdateHotspot(sessionID, contentID string, h models.Hotspot) (*EditResult, error) {
	return s.edit(sessionID, "update_hotspot", func(sess *Session) (*models.Document, string, error) {
		if contentID == "" {
			contentID = sess.state.ContentID
		}
		doc, err := editor.UpdateHotspot(sess.doc, contentID, h)
		return doc, "", err
	})
}

// DeleteHotspot 删除热点并取消选中
func (s *SessionService) DeleteHotspot(sessionID, contentID, hotspotID string) (*EditResult, error) {
	return s.edit(sessionID, "delete_hotspot", func(sess *Session) (*models.Document, string, error) {
		if contentID == "" {
			contentID = sess.state.ContentID
		}
		doc, err := editor.DeleteHotspot(sess.doc, contentID, hotspotID)
		if err == nil {
			sess.state.HotspotID = ""
		}
		return doc, "", err
	})
}

// AddHTMLSlide 在当前序列末尾添加 HTML 幻灯片并选中
func (s *SessionService) AddHTMLSlide(sessionID string) (*EditResult, error) {
	return s.edit(sessionID, "add_html", func(sess *Session) (*models.Document, string, error) {
		slide := editor.NewHTMLSlide(s.idGen)
		doc, err := editor.AddContent(sess.doc, sess.state.SequenceID, slide)
		if err != nil {
			return doc, "", err
		}
		sess.applyDocument(doc)
		sess.setState(sess.nav.SelectContent(sess.state, slide.ID))
		return doc, slide.ID, nil
	})
}

// UploadMedia 添加上传的图片或视频，并为其安装预览
func (s *SessionService) UploadMedia(sessionID, filename, mimeType string, data []byte) (*EditResult, error) {
	return s.edit(sessionID, "upload", func(sess *Session) (*models.Document, string, error) {
		content := editor.NewUploadedMedia(filename, mimeType, s.idGen)
		doc, err := editor.AddContent(sess.doc, sess.state.SequenceID, content)
		if err != nil {
			return doc, "", err
		}
		if _, err := s.previews.Install(sessionID, content.ID, filename, mimeType, data); err != nil {
			return sess.doc, "", apperrors.NewProcessingError("保存预览失败", err)
		}
		sess.applyDocument(doc)
		sess.setState(sess.nav.SelectContent(sess.state, content.ID))
		return doc, content.ID, nil
	})
}

// ReorderContent 在当前序列内移动条目
func (s *SessionService) ReorderContent(sessionID string, from, to int) (*EditResult, error) {
	return s.edit(sessionID, "reorder", func(sess *Session) (*models.Document, string, error) {
		doc, err := editor.ReorderContent(sess.doc, sess.state.SequenceID, from, to)
		return doc, "", err
	})
}

// DragStart 开始拖拽排序
func (s *SessionService) DragStart(sessionID string, index int) (*SessionView, error) {
	var view *SessionView
	err := s.withSession(sessionID, true, func(sess *Session) error {
		if !sess.gesture.Start(index) {
			return apperrors.NewConflictError("当前会话不能拖拽排序", nil)
		}
		view = s.viewOf(sess)
		return nil
	})
	return view, err
}

// DragDrop 放下拖拽的条目，位置不同时执行排序
func (s *SessionService) DragDrop(sessionID string, index int) (*EditResult, error) {
	return s.edit(sessionID, "reorder", func(sess *Session) (*models.Document, string, error) {
		from, to, ok := sess.gesture.Drop(index)
		if !ok {
			return sess.doc, "", nil
		}
		doc, err := editor.ReorderContent(sess.doc, sess.state.SequenceID, from, to)
		return doc, "", err
	})
}

// DeleteContent 删除内容，同时释放其预览
func (s *SessionService) DeleteContent(sessionID, contentID string) (*EditResult, error) {
	return s.edit(sessionID, "delete_content", func(sess *Session) (*models.Document, string, error) {
		doc, err := editor.DeleteContent(sess.doc, contentID)
		if err == nil {
			s.previews.Release(sessionID, contentID)
		}
		return doc, "", err
	})
}

// Repair 删除悬空的序列条目
func (s *SessionService) Repair(sessionID string) (*EditResult, []models.IntegrityIssue, error) {
	var removed []models.IntegrityIssue
	res, err := s.edit(sessionID, "repair", func(sess *Session) (*models.Document, string, error) {
		var doc *models.Document
		doc, removed = editor.RepairDanglingReferences(sess.doc)
		return doc, "", nil
	})
	return res, removed, err
}

// Integrity 当前文档的完整性报告
func (s *SessionService) Integrity(sessionID string) ([]models.IntegrityIssue, error) {
	var issues []models.IntegrityIssue
	err := s.withSession(sessionID, true, func(sess *Session) error {
		issues = sess.doc.CheckIntegrity()
		return nil
	})
	return issues, err
}

// Document 当前文档快照（不可变，可直接读取）
func (s *SessionService) Document(sessionID string) (*models.Document, navigation.State, error) {
	var (
		doc *models.Document
		st  navigation.State
	)
	err := s.withSession(sessionID, true, func(sess *Session) error {
		doc, st = sess.doc, sess.state
		return nil
	})
	return doc, st, err
}

// Save 保存会话文档；失败时内存文档保持不变，可重试
func (s *SessionService) Save(ctx context.Context, sessionID string) (models.SaveResult, error) {
	var result models.SaveResult
	err := s.withSession(sessionID, true, func(sess *Session) error {
		if sess.Mode.ReadOnly() {
			return apperrors.NewConflictError("播放会话是只读的", nil)
		}
		result = s.docs.Save(ctx, sess.doc)
		if result.Success {
			sess.dirty = false
		}
		return nil
	})
	return result, err
}
