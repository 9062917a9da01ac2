package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/HotspotDeck/internal/drawing"
	"github.com/Corphon/HotspotDeck/internal/editor"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/navigation"
	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

const playerDoc = `{
  "projectId": "demo",
  "sequences": [{"id": "seq-1", "title": "Main", "contents": ["s1", "s2"]}],
  "contents": {
    "s1": {"id": "s1", "title": "One", "type": "image", "src": "/media/one.png",
      "hotspots": [{"id": "h1", "x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2, "action": "route", "target": "s2"}]},
    "s2": {"id": "s2", "title": "Two", "type": "html", "html": "<p>two</p>", "hotspots": []}
  }
}`

type recordedEvent struct {
	sessionID string
	event     string
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishToSession(sessionID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{sessionID, event})
}

func (r *eventRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc      *SessionService
	docs     *DocumentService
	previews *PreviewRegistry
	metrics  *utils.DeckMetrics
	events   *eventRecorder
	dataDir  string
}

func newTestEnv(t *testing.T, raw string) *testEnv {
	t.Helper()
	dataDir := t.TempDir()
	if raw != "" {
		if err := os.WriteFile(filepath.Join(dataDir, "project-config.json"), []byte(raw), 0644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := storage.NewFileStorage(dataDir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	previewFS, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	t.Cleanup(func() {
		fs.Close()
		previewFS.Close()
	})

	logger := utils.NewNop()
	metrics := utils.NewDeckMetricsWith(utils.NewMetricsCollector(), logger)
	docs := NewDocumentService(storage.NewFileDocumentRepository(fs, "project-config.json"), 2, metrics, logger)
	docs.SetRetryInterval(time.Millisecond)
	previews := NewPreviewRegistry(previewFS, logger)
	locks := NewLockManager()
	t.Cleanup(locks.Stop)

	svc := NewSessionService(docs, previews, locks, metrics, logger)
	n := 0
	svc.SetIDGenerator(func(prefix string) string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	})
	events := &eventRecorder{}
	svc.SetPublisher(events)
	return &testEnv{svc: svc, docs: docs, previews: previews, metrics: metrics, events: events, dataDir: dataDir}
}

func (e *testEnv) create(t *testing.T, mode navigation.Mode, seq string) *SessionView {
	t.Helper()
	v, err := e.svc.Create(context.Background(), mode, seq)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !v.Ready {
		t.Fatalf("session not ready: %s", v.LoadError)
	}
	return v
}

func TestPlayerWalkthrough(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModePlayer, "seq-1")
	id := v.ID

	if v.State.ContentID != "s1" || !v.CanNext || v.CanPrev {
		t.Fatalf("initial: got=%+v canNext=%v canPrev=%v", v.State, v.CanNext, v.CanPrev)
	}

	v, err := env.svc.HandleKey(id, navigation.KeyArrowRight, navigation.FocusNone)
	if err != nil {
		t.Fatal(err)
	}
	if v.State.ContentID != "s2" || v.CanNext || !v.CanPrev {
		t.Fatalf("after ArrowRight: got=%+v", v.State)
	}

	v, _ = env.svc.HandleKey(id, navigation.KeyArrowRight, navigation.FocusNone)
	if v.State.ContentID != "s2" {
		t.Fatalf("next at end should stay: got=%v want=s2", v.State.ContentID)
	}

	v, _ = env.svc.HandleKey(id, navigation.KeyArrowLeft, navigation.FocusTextarea)
	if v.State.ContentID != "s2" {
		t.Fatalf("key in textarea should be ignored: got=%v", v.State.ContentID)
	}

	v, _ = env.svc.Prev(id)
	if v.State.ContentID != "s1" {
		t.Fatalf("prev: got=%v want=s1", v.State.ContentID)
	}

	// 点击 h1 区域，路由到 s2
	res, err := env.svc.Pointer(id, PointerEvent{
		Kind:   "click",
		Point:  drawing.Point{X: 150, Y: 150},
		Canvas: drawing.Canvas{Width: 1000, Height: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.Session.State.ContentID != "s2" {
		t.Fatalf("hotspot click: applied=%v content=%v", res.Applied, res.Session.State.ContentID)
	}
	if env.events.count(EventStateChanged) == 0 {
		t.Fatal("expected state:changed events")
	}
}

func TestPlayerSessionIsReadOnly(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModePlayer, "seq-1")

	if _, err := env.svc.SetContentTitle(v.ID, "s1", "x"); !apperrors.IsConflictError(err) {
		t.Fatalf("edit in player: got=%v want conflict", err)
	}
	if _, err := env.svc.Save(context.Background(), v.ID); !apperrors.IsConflictError(err) {
		t.Fatalf("save in player: got=%v want conflict", err)
	}
	if _, err := env.svc.DragStart(v.ID, 0); !apperrors.IsConflictError(err) {
		t.Fatalf("drag in player: got=%v want conflict", err)
	}
	got, _ := env.svc.SelectHotspot(v.ID, "h1")
	if got.State.HotspotID != "" {
		t.Fatalf("player cannot select hotspots: got=%v", got.State.HotspotID)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	if _, err := env.svc.Create(context.Background(), "viewer", ""); !apperrors.IsValidationError(err) {
		t.Fatalf("unknown mode: got=%v", err)
	}
	if _, err := env.svc.Create(context.Background(), navigation.ModePlayer, ""); !apperrors.IsValidationError(err) {
		t.Fatalf("player without sequence: got=%v", err)
	}
}

func TestLoadFailureLeavesSessionUnavailable(t *testing.T) {
	env := newTestEnv(t, "")
	v, err := env.svc.Create(context.Background(), navigation.ModeAuthor, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.Ready || v.Loading || v.LoadError == "" {
		t.Fatalf("got ready=%v loading=%v err=%q", v.Ready, v.Loading, v.LoadError)
	}
	if _, err := env.svc.Next(v.ID); !apperrors.IsUnavailableError(err) {
		t.Fatalf("navigate before load: got=%v want unavailable", err)
	}

	if err := os.WriteFile(filepath.Join(env.dataDir, "project-config.json"), []byte(playerDoc), 0644); err != nil {
		t.Fatal(err)
	}
	v, err = env.svc.Reload(context.Background(), v.ID)
	if err != nil || !v.Ready {
		t.Fatalf("reload: ready=%v err=%v", v.Ready, err)
	}
}

func TestAuthorDrawsHotspot(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	canvas := drawing.Canvas{Left: 100, Top: 50, Width: 800, Height: 400}

	if v.State.ContentID != "" {
		t.Fatalf("author starts with no selection: got=%v", v.State.ContentID)
	}
	if _, err := env.svc.SelectSequence(id, "seq-1"); err != nil {
		t.Fatal(err)
	}
	if v, _ = env.svc.SelectHotspot(id, "h1"); v.State.HotspotID != "h1" {
		t.Fatalf("select hotspot: got=%v", v.State.HotspotID)
	}

	res, err := env.svc.Pointer(id, PointerEvent{Kind: "down", Point: drawing.Point{X: 180, Y: 90}, Canvas: canvas})
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.State.HotspotID != "" || res.Session.Drawing != "drawing" {
		t.Fatalf("pointer down: hotspot=%v drawing=%v", res.Session.State.HotspotID, res.Session.Drawing)
	}
	env.svc.Pointer(id, PointerEvent{Kind: "move", Point: drawing.Point{X: 500, Y: 250}, Canvas: canvas})
	res, err = env.svc.Pointer(id, PointerEvent{Kind: "up", Canvas: canvas})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.NewID != "h-1" {
		t.Fatalf("pointer up: applied=%v newId=%v", res.Applied, res.NewID)
	}
	if res.Session.State.HotspotID != "h-1" || !res.Session.Dirty {
		t.Fatalf("new hotspot should be selected and doc dirty: %+v", res.Session.State)
	}

	doc, _, _ := env.svc.Document(id)
	c, _ := doc.Content("s1")
	h, _, ok := c.FindHotspot("h-1")
	if !ok {
		t.Fatal("hotspot not in document")
	}
	if h.Title != models.DefaultHotspotTitle || h.Action != models.ActionRoute {
		t.Fatalf("got title=%q action=%q", h.Title, h.Action)
	}
	if diff := h.X - 0.1; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("x: got=%v want=0.1", h.X)
	}
	if diff := h.Width - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("width: got=%v want=0.4", h.Width)
	}

	// 太小的矩形被丢弃
	env.svc.Pointer(id, PointerEvent{Kind: "down", Point: drawing.Point{X: 200, Y: 100}, Canvas: canvas})
	env.svc.Pointer(id, PointerEvent{Kind: "move", Point: drawing.Point{X: 205, Y: 300}, Canvas: canvas})
	res, _ = env.svc.Pointer(id, PointerEvent{Kind: "up", Canvas: canvas})
	if res.Applied {
		t.Fatal("tiny rectangle should not create a hotspot")
	}
}

func TestPointerDownOutsideCanvasCreatesNothing(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	canvas := drawing.Canvas{Width: 1000, Height: 500}
	env.svc.SelectSequence(id, "seq-1")

	res, err := env.svc.Pointer(id, PointerEvent{Kind: "down", Point: drawing.Point{X: -50, Y: -50}, Canvas: canvas})
	if err != nil {
		t.Fatal(err)
	}
	if res.Session.Drawing != "idle" {
		t.Fatalf("drawing: got=%v want=idle", res.Session.Drawing)
	}
	env.svc.Pointer(id, PointerEvent{Kind: "move", Point: drawing.Point{X: 300, Y: 200}, Canvas: canvas})
	res, err = env.svc.Pointer(id, PointerEvent{Kind: "up", Canvas: canvas})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Fatal("no hotspot expected from a drag that started outside the canvas")
	}

	doc, _, _ := env.svc.Document(id)
	c, _ := doc.Content("s1")
	if len(c.Hotspots) != 1 {
		t.Fatalf("hotspots: got=%d want=1", len(c.Hotspots))
	}
	for _, h := range c.Hotspots {
		if !h.Rect().Valid() {
			t.Fatalf("invalid hotspot stored: %+v", h)
		}
	}
}

func TestAddHotspotRejectsZeroSize(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	env.svc.SelectSequence(id, "seq-1")

	_, err := env.svc.AddHotspot(id, "s1", editor.HotspotDraft{Rect: models.Rect{X: 0.5, Y: 0.5}})
	if !apperrors.IsValidationError(err) {
		t.Fatalf("zero size: got=%v want validation error", err)
	}
	doc, _, _ := env.svc.Document(id)
	c, _ := doc.Content("s1")
	if len(c.Hotspots) != 1 {
		t.Fatalf("hotspots: got=%d want=1", len(c.Hotspots))
	}

	flat := c.Hotspots[0]
	flat.Width = 0
	if _, err := env.svc.UpdateHotspot(id, "s1", flat); !apperrors.IsValidationError(err) {
		t.Fatalf("update to zero width: got=%v want validation error", err)
	}
}

func TestDrawingDisabledInCodeView(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	env.svc.SelectSequence(v.ID, "seq-1")
	env.svc.SelectContent(v.ID, "s2")

	if v, _ = env.svc.SetCodeView(v.ID, true); !v.State.CodeView {
		t.Fatal("code view should open on html content")
	}
	res, _ := env.svc.Pointer(v.ID, PointerEvent{Kind: "down", Canvas: drawing.Canvas{Width: 10, Height: 10}})
	if res.Session.Drawing != "idle" {
		t.Fatalf("drawing in code view: got=%v want=idle", res.Session.Drawing)
	}
}

func TestEditsAndMissingReferences(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	env.svc.SelectSequence(id, "seq-1")

	res, err := env.svc.SetContentTitle(id, "s1", "Portada")
	if err != nil || !res.Applied {
		t.Fatalf("set title: applied=%v err=%v", res.Applied, err)
	}
	if res.Session.Content.Title != "Portada" {
		t.Fatalf("title: got=%v want=Portada", res.Session.Content.Title)
	}

	res, err = env.svc.SetContentTitle(id, "ghost", "x")
	if err != nil || res.Applied || res.Reason == "" {
		t.Fatalf("missing content: applied=%v reason=%q err=%v", res.Applied, res.Reason, err)
	}

	bad := models.Hotspot{ID: "h1", X: 0.9, Y: 0, Width: 0.5, Height: 0.1, Action: models.ActionRoute}
	if _, err := env.svc.UpdateHotspot(id, "s1", bad); !apperrors.IsValidationError(err) {
		t.Fatalf("invalid geometry: got=%v want validation", err)
	}

	env.svc.SelectHotspot(id, "h1")
	res, err = env.svc.DeleteHotspot(id, "", "h1")
	if err != nil || !res.Applied {
		t.Fatalf("delete hotspot: applied=%v err=%v", res.Applied, err)
	}
	if res.Session.State.HotspotID != "" || len(res.Session.Content.Hotspots) != 0 {
		t.Fatalf("after delete: state=%+v hotspots=%d", res.Session.State, len(res.Session.Content.Hotspots))
	}
	if env.events.count(EventDocumentChanged) != 2 {
		t.Fatalf("document:changed events: got=%d want=2", env.events.count(EventDocumentChanged))
	}
}

func TestAddSlideUploadAndDelete(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	env.svc.SelectSequence(id, "seq-1")

	res, err := env.svc.AddHTMLSlide(id)
	if err != nil || res.NewID != "html-1" {
		t.Fatalf("add slide: id=%v err=%v", res.NewID, err)
	}
	if res.Session.State.ContentID != "html-1" || res.Session.Content.Title != editor.HTMLSlideTitle {
		t.Fatalf("new slide should be selected: %+v", res.Session.State)
	}

	res, err = env.svc.UploadMedia(id, "Mapa.png", "image/png", []byte("png-bytes"))
	if err != nil || !res.Applied {
		t.Fatalf("upload: applied=%v err=%v", res.Applied, err)
	}
	newID := res.NewID
	if got := res.Session.Content.Src; got != "/media/Mapa.png" {
		t.Fatalf("src: got=%v want=/media/Mapa.png", got)
	}
	if _, ok := res.Session.Previews[newID]; !ok || env.previews.Count() != 1 {
		t.Fatalf("preview not installed: %v", res.Session.Previews)
	}
	want := []string{"s1", "s2", "html-1", newID}
	if got := res.Session.Sequence.Contents; fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("sequence: got=%v want=%v", got, want)
	}

	res, err = env.svc.DeleteContent(id, newID)
	if err != nil || !res.Applied {
		t.Fatalf("delete content: applied=%v err=%v", res.Applied, err)
	}
	if res.Session.State.ContentID != "" || env.previews.Count() != 0 {
		t.Fatalf("after delete: content=%v previews=%d", res.Session.State.ContentID, env.previews.Count())
	}
}

func TestDragReorder(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	env.svc.SelectSequence(id, "seq-1")

	if _, err := env.svc.DragStart(id, 0); err != nil {
		t.Fatal(err)
	}
	res, err := env.svc.DragDrop(id, 1)
	if err != nil || !res.Applied {
		t.Fatalf("drop: applied=%v err=%v", res.Applied, err)
	}
	if got := fmt.Sprint(res.Session.Sequence.Contents); got != "[s2 s1]" {
		t.Fatalf("order: got=%v want=[s2 s1]", got)
	}

	if _, err := env.svc.ReorderContent(id, 0, 5); !apperrors.IsValidationError(err) {
		t.Fatalf("out of range: got=%v want validation", err)
	}
}

func TestBridgeMessages(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModePlayer, "seq-1")

	cases := []struct {
		raw      string
		accepted bool
	}{
		{`{"type":"NAVIGATE","targetId":"s2"}`, true},
		{`{"type":"navigate","targetId":"s1"}`, false},
		{`{"type":"NAVIGATE","targetId":5}`, false},
		{`not json`, false},
	}
	for _, tc := range cases {
		got, err := env.svc.HandleBridgeMessage(v.ID, []byte(tc.raw))
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.accepted {
			t.Fatalf("%s: got=%v want=%v", tc.raw, got, tc.accepted)
		}
	}
	cur, _ := env.svc.Get(v.ID)
	if cur.State.ContentID != "s2" {
		t.Fatalf("bridge navigation: got=%v want=s2", cur.State.ContentID)
	}

	// 目标不存在时接受但不改变选择
	env.svc.HandleBridgeMessage(v.ID, []byte(`{"type":"NAVIGATE","targetId":"ghost"}`))
	cur, _ = env.svc.Get(v.ID)
	if cur.State.ContentID != "s2" {
		t.Fatalf("unknown target: got=%v want=s2", cur.State.ContentID)
	}

	c := env.metrics.Collector()
	if c.GetCounterValue("bridge_messages_accepted") != 2 || c.GetCounterValue("bridge_messages_ignored") != 3 {
		t.Fatalf("bridge metrics: accepted=%d ignored=%d",
			c.GetCounterValue("bridge_messages_accepted"), c.GetCounterValue("bridge_messages_ignored"))
	}
}

func TestBridgeIsolatedBetweenSessions(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	a := env.create(t, navigation.ModePlayer, "seq-1")
	b := env.create(t, navigation.ModePlayer, "seq-1")

	env.svc.HandleBridgeMessage(a.ID, []byte(`{"type":"NAVIGATE","targetId":"s2"}`))
	got, _ := env.svc.Get(b.ID)
	if got.State.ContentID != "s1" {
		t.Fatalf("other session moved: got=%v want=s1", got.State.ContentID)
	}
}

func TestSaveAndClose(t *testing.T) {
	env := newTestEnv(t, playerDoc)
	v := env.create(t, navigation.ModeAuthor, "")
	id := v.ID
	env.svc.SetContentTitle(id, "s2", "Cierre")
	env.svc.UploadMedia(id, "intro.mp4", "video/mp4", []byte("x"))

	result, err := env.svc.Save(context.Background(), id)
	if err != nil || !result.Success || result.Message != models.SaveOKMessage {
		t.Fatalf("save: %+v err=%v", result, err)
	}
	cur, _ := env.svc.Get(id)
	if cur.Dirty {
		t.Fatal("dirty flag should clear after save")
	}

	raw, err := os.ReadFile(filepath.Join(env.dataDir, "project-config.json"))
	if err != nil {
		t.Fatal(err)
	}
	var saved models.Document
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Contents["s2"].Title != "Cierre" {
		t.Fatalf("saved title: got=%v want=Cierre", saved.Contents["s2"].Title)
	}

	if err := env.svc.Close(id); err != nil {
		t.Fatal(err)
	}
	if env.previews.Count() != 0 || env.svc.Count() != 0 {
		t.Fatalf("after close: previews=%d sessions=%d", env.previews.Count(), env.svc.Count())
	}
	if _, err := env.svc.Get(id); !apperrors.IsNotFoundError(err) {
		t.Fatalf("closed session: got=%v want not found", err)
	}
	if env.metrics.Collector().GetGauge("sessions_active") != 0 {
		t.Fatal("sessions_active gauge should return to zero")
	}
}

func TestRepairAndIntegrity(t *testing.T) {
	raw := `{"projectId":"p","sequences":[{"id":"a","title":"A","contents":["x","ghost"]}],
	"contents":{"x":{"id":"x","title":"X","type":"image","src":"/media/x.png","hotspots":[
	{"id":"h","x":0,"y":0,"width":0.5,"height":0.5,"action":"route","target":"nowhere"}]}}}`
	env := newTestEnv(t, raw)
	v := env.create(t, navigation.ModeAuthor, "")

	issues, err := env.svc.Integrity(v.ID)
	if err != nil || len(issues) != 2 {
		t.Fatalf("integrity: got=%d issues err=%v", len(issues), err)
	}
	res, removed, err := env.svc.Repair(v.ID)
	if err != nil || !res.Applied || len(removed) != 1 {
		t.Fatalf("repair: applied=%v removed=%d err=%v", res.Applied, len(removed), err)
	}
	issues, _ = env.svc.Integrity(v.ID)
	if len(issues) != 1 || issues[0].Kind != models.IssueDanglingTarget {
		t.Fatalf("after repair: %+v", issues)
	}
}
