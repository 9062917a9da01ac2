// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Corphon/HotspotDeck/internal/utils"
)

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个会话的查看者连接
type WebSocketClient struct {
	conn      WebSocketConnection
	sessionID string
	clientID  string
	send      chan []byte
	closed    int32 // 原子操作标志，0=开启，1=关闭
	sendOnce  sync.Once
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection, sessionID, clientID string) *WebSocketClient {
	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		clientID:  clientID,
		send:      make(chan []byte, 256),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// closeSend 只由写协程调用一次
func (client *WebSocketClient) closeSend() {
	client.sendOnce.Do(func() { close(client.send) })
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后活跃时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// LastPing 最后活跃时间
func (client *WebSocketClient) LastPing() time.Time {
	return time.Unix(0, client.lastPing.Load())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(client.LastPing()) > timeout
}

// SendMessage 非阻塞地把消息放入发送队列，队列满时丢弃
func (client *WebSocketClient) SendMessage(message interface{}) bool {
	if client.IsClosed() {
		return false
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return false
	}
	return client.enqueue(msgBytes)
}

func (client *WebSocketClient) enqueue(msg []byte) (ok bool) {
	defer func() {
		// 写协程已关闭通道
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case client.send <- msg:
		return true
	default:
		return false
	}
}

// SendError 发送错误消息到客户端
func (client *WebSocketClient) SendError(errorMsg string) {
	client.SendMessage(map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// WebSocketManager 按会话管理 WebSocket 连接，并把会话事件推送给所有查看者
type WebSocketManager struct {
	connections map[string]map[*WebSocketClient]struct{} // sessionID -> clients
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	stop        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	pingTimeout time.Duration
	upgrader    websocket.Upgrader
	logger      *utils.Logger
}

// NewWebSocketManager 创建管理器；allowedOrigins 为空或包含 "*" 时不检查来源
func NewWebSocketManager(allowedOrigins []string, logger *utils.Logger) *WebSocketManager {
	if logger == nil {
		logger = utils.GetLogger()
	}
	m := &WebSocketManager{
		connections: make(map[string]map[*WebSocketClient]struct{}),
		register:    make(chan *WebSocketClient, 256),
		unregister:  make(chan *WebSocketClient, 256),
		stop:        make(chan struct{}),
		pingTimeout: 60 * time.Second,
		logger:      logger,
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// Start 启动管理器主循环
func (manager *WebSocketManager) Start() {
	go manager.run()
}

// Stop 关闭所有连接并停止主循环
func (manager *WebSocketManager) Stop() {
	manager.stopOnce.Do(func() { close(manager.stop) })
}

func (manager *WebSocketManager) run() {
	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-cleanupTicker.C:
			manager.cleanupExpiredConnections()

		case <-manager.stop:
			manager.shutdown()
			return
		}
	}
}

// registerClient 注册新客户端
func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*WebSocketClient]struct{})
	}
	manager.connections[client.sessionID][client] = struct{}{}
	client.UpdatePing()

	manager.logger.Info("✅ WebSocket client connected", map[string]interface{}{
		"session_id": client.sessionID,
		"client_id":  client.clientID,
	})
}

// unregisterClient 安全注销客户端
func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	if clients, exists := manager.connections[client.sessionID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}
	manager.mutex.Unlock()

	client.Close()

	manager.logger.Info("🔌 WebSocket client disconnected", map[string]interface{}{
		"session_id": client.sessionID,
		"client_id":  client.clientID,
	})
}

// cleanupExpiredConnections 清理过期和死连接
func (manager *WebSocketManager) cleanupExpiredConnections() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	removed := 0
	for sessionID, clients := range manager.connections {
		for client := range clients {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(clients, client)
				client.Close()
				removed++
			}
		}
		if len(clients) == 0 {
			delete(manager.connections, sessionID)
		}
	}
	return removed
}

// shutdown 关闭全部连接
func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for _, clients := range manager.connections {
		for client := range clients {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*WebSocketClient]struct{})
	manager.logger.Info("✅ WebSocket manager stopped", nil)
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	sessions := make(map[string]interface{})
	total := 0
	for sessionID, clients := range manager.connections {
		viewers := make([]map[string]interface{}, 0, len(clients))
		for client := range clients {
			if client.IsClosed() {
				continue
			}
			viewers = append(viewers, map[string]interface{}{
				"client_id":    client.clientID,
				"connected_at": client.createdAt.Format(time.RFC3339),
				"last_ping":    client.LastPing().Format(time.RFC3339),
			})
		}
		sessions[sessionID] = map[string]interface{}{
			"client_count": len(viewers),
			"clients":      viewers,
		}
		total += len(viewers)
	}

	return map[string]interface{}{
		"total_sessions":       len(manager.connections),
		"total_connections":    total,
		"sessions":             sessions,
		"ping_timeout_seconds": int(manager.pingTimeout.Seconds()),
	}
}

// ClientCount 会话的连接数
func (manager *WebSocketManager) ClientCount(sessionID string) int {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()
	return len(manager.connections[sessionID])
}

// PublishToSession 向会话的全部查看者推送事件
func (manager *WebSocketManager) PublishToSession(sessionID, event string, payload interface{}) {
	msgBytes, err := json.Marshal(map[string]interface{}{
		"type":       event,
		"session_id": sessionID,
		"data":       payload,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		manager.logger.Error("❌ Failed to encode session event", map[string]interface{}{
			"event": event,
			"error": err,
		})
		return
	}

	manager.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(manager.connections[sessionID]))
	for client := range manager.connections[sessionID] {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	manager.mutex.RUnlock()

	dropped := 0
	for _, client := range clients {
		if !client.enqueue(msgBytes) {
			dropped++
			client.Close()
		}
	}
	if dropped > 0 {
		manager.logger.Warn("⚠️ Slow WebSocket clients dropped", map[string]interface{}{
			"session_id": sessionID,
			"dropped":    dropped,
		})
	}
}
