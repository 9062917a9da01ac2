// internal/bridge/bridge.go
package bridge

import (
	"encoding/json"
	"sync"
)

// MessageTypeNavigate 唯一被接受的消息类型
const MessageTypeNavigate = "NAVIGATE"

// NavigationReceiver 嵌入内容唯一能调用的宿主能力
type NavigationReceiver interface {
	ReceiveNavigationIntent(targetID string)
}

// ReceiverFunc 函数适配器
type ReceiverFunc func(targetID string)

// ReceiveNavigationIntent 实现 NavigationReceiver
func (f ReceiverFunc) ReceiveNavigationIntent(targetID string) { f(targetID) }

// Intent 解码后的导航意图
type Intent struct {
	TargetID string
}

// Decode 只接受 {"type":"NAVIGATE","targetId":"<非空字符串>"}
func Decode(raw []byte) (Intent, bool) {
	var msg struct {
		Type     json.RawMessage `json:"type"`
		TargetID json.RawMessage `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Intent{}, false
	}
	var kind, target string
	if json.Unmarshal(msg.Type, &kind) != nil || kind != MessageTypeNavigate {
		return Intent{}, false
	}
	if json.Unmarshal(msg.TargetID, &target) != nil || target == "" {
		return Intent{}, false
	}
	return Intent{TargetID: target}, true
}

// Listener 将消息转发给接收者，关闭后忽略所有消息
type Listener struct {
	mu       sync.RWMutex
	receiver NavigationReceiver
	closed   bool
}

// Attach 绑定接收者
func Attach(receiver NavigationReceiver) *Listener {
	return &Listener{receiver: receiver}
}

// Handle 处理一条原始消息，返回是否转发
func (l *Listener) Handle(raw []byte) bool {
	intent, ok := Decode(raw)
	if !ok {
		return false
	}
	l.mu.RLock()
	receiver, closed := l.receiver, l.closed
	l.mu.RUnlock()
	if closed || receiver == nil {
		return false
	}
	receiver.ReceiveNavigationIntent(intent.TargetID)
	return true
}

// Close 宿主销毁时调用
func (l *Listener) Close() {
	l.mu.Lock()
	l.closed = true
	l.receiver = nil
	l.mu.Unlock()
}

// Closed 是否已关闭
func (l *Listener) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}
