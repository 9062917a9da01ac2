// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/services"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
	wsMaxFrameSize = 64 * 1024
)

// WebSocketHandler 会话的消息通道：入站帧交给消息桥，出站推送状态事件
type WebSocketHandler struct {
	sessions *services.SessionService
	manager  *WebSocketManager
	logger   *utils.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(sessions *services.SessionService, manager *WebSocketManager, logger *utils.Logger) *WebSocketHandler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &WebSocketHandler{sessions: sessions, manager: manager, logger: logger}
}

// SessionWebSocket 处理 /ws/sessions/:id
func (wh *WebSocketHandler) SessionWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	view, err := wh.sessions.Get(sessionID)
	if err != nil {
		http.Error(c.Writer, "会话不存在", http.StatusNotFound)
		return
	}

	conn, err := wh.manager.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("❌ WebSocket upgrade failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
		return
	}
	conn.SetReadLimit(wsMaxFrameSize)

	clientID := c.DefaultQuery("client_id", uuid.NewString())
	client := newWebSocketClient(conn, sessionID, clientID)

	select {
	case wh.manager.register <- client:
	default:
		wh.logger.Warn("❌ WebSocket register queue full", map[string]interface{}{"session_id": sessionID})
		conn.Close()
		return
	}

	go wh.handleWebSocketWrites(client)

	client.SendMessage(map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"client_id":  clientID,
		"data":       view,
		"timestamp":  time.Now().Format(time.RFC3339),
	})

	// 读循环在当前 goroutine 中运行，连接断开后返回
	wh.handleWebSocketReads(client)
}

// handleWebSocketReads 处理入站帧
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient) {
	defer func() {
		select {
		case wh.manager.unregister <- client:
		case <-time.After(time.Second):
			client.Close()
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for !client.IsClosed() {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Warn("❌ WebSocket read error", map[string]interface{}{
					"session_id": client.sessionID,
					"error":      err,
				})
			}
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if !wh.handleMessage(client, raw) {
			return
		}
	}
}

// handleMessage 返回 false 时关闭连接
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, raw []byte) bool {
	var envelope struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Type == "ping" {
		client.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		})
		return true
	}

	// 其余帧都视为嵌入内容发来的消息，由消息桥决定是否接受
	accepted, err := wh.sessions.HandleBridgeMessage(client.sessionID, raw)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			client.SendError("会话已关闭")
			return false
		}
		client.SendError(err.Error())
		return true
	}
	if !accepted {
		wh.logger.Debug("Bridge message ignored", map[string]interface{}{
			"session_id": client.sessionID,
			"size":       len(raw),
		})
	}
	return true
}

// handleWebSocketWrites 把发送队列写入连接，并定期发送 ping
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
		client.closeSend()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
