package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/HotspotDeck/internal/services"
)

type wsFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

func dialSession(t *testing.T, srv *httptest.Server, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil 读取帧直到出现指定类型
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) wsFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %q: %v", frameType, err)
		}
		if f.Type == frameType {
			return f
		}
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %s: %v", frame, err)
	}
}

// syncFrames 发送 ping 并等待 pong，之前的帧都已被服务端处理
func syncFrames(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeFrame(t, conn, `{"type":"ping"}`)
	readUntil(t, conn, "pong")
}

func (e *apiEnv) currentContent(t *testing.T, sessionID string) string {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/sessions/"+sessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session status=%d body=%s", w.Code, w.Body.String())
	}
	var view services.SessionView
	decodeEnvelope(t, w, &view)
	return view.State.ContentID
}

func TestSessionWebSocketBridge(t *testing.T) {
	env := newAPIEnv(t, demoDoc, 0)
	view := env.createSession(t, "player", "seq-1")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := dialSession(t, srv, view.ID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readUntil(t, conn, "connected")
	if hello.SessionID != view.ID {
		t.Fatalf("connected session got=%s want=%s", hello.SessionID, view.ID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.ws.ClientCount(view.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client not registered: count=%d", env.ws.ClientCount(view.ID))
		}
		time.Sleep(10 * time.Millisecond)
	}

	writeFrame(t, conn, `{"type":"CLICK","targetId":"s2"}`)
	writeFrame(t, conn, `not json`)
	syncFrames(t, conn)
	if got := env.currentContent(t, view.ID); got != "s1" {
		t.Fatalf("after ignored frames content got=%s want=s1", got)
	}

	writeFrame(t, conn, `{"type":"NAVIGATE","targetId":"s2"}`)
	ev := readUntil(t, conn, services.EventStateChanged)
	var evView services.SessionView
	if err := json.Unmarshal(ev.Data, &evView); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evView.State.ContentID != "s2" {
		t.Fatalf("event content got=%s want=s2", evView.State.ContentID)
	}
	if got := env.currentContent(t, view.ID); got != "s2" {
		t.Fatalf("after NAVIGATE content got=%s want=s2", got)
	}

	// 未知目标被忽略
	writeFrame(t, conn, `{"type":"NAVIGATE","targetId":"nope"}`)
	syncFrames(t, conn)
	if got := env.currentContent(t, view.ID); got != "s2" {
		t.Fatalf("after unknown target content got=%s want=s2", got)
	}
}

func TestSessionWebSocketReceivesHTTPNavigation(t *testing.T) {
	env := newAPIEnv(t, demoDoc, 0)
	view := env.createSession(t, "player", "seq-1")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := dialSession(t, srv, view.ID)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, "connected")

	deadline := time.Now().Add(2 * time.Second)
	for env.ws.ClientCount(view.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := env.do(t, http.MethodPost, "/api/sessions/"+view.ID+"/next", nil); w.Code != http.StatusOK {
		t.Fatalf("next status=%d body=%s", w.Code, w.Body.String())
	}
	ev := readUntil(t, conn, services.EventStateChanged)
	var evView services.SessionView
	if err := json.Unmarshal(ev.Data, &evView); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evView.State.ContentID != "s2" {
		t.Fatalf("event content got=%s want=s2", evView.State.ContentID)
	}
}

func TestSessionWebSocketUnknownSession(t *testing.T) {
	env := newAPIEnv(t, demoDoc, 0)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, resp, err := dialSession(t, srv, "missing")
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail for an unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status got=%v want=%d", resp, http.StatusNotFound)
	}
}
