// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 会话级别的锁管理器，每个会话同一时刻只执行一个操作
type LockManager struct {
	sessionLocks map[string]*LockInfo
	globalLock   sync.Mutex
	lockTTL      time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
	refs     int // 正在等待或持有该锁的调用数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		sessionLocks: make(map[string]*LockInfo),
		lockTTL:      30 * time.Minute,
		stop:         make(chan struct{}),
	}
	lm.startCleanup(5 * time.Minute)
	return lm
}

// acquire 取得锁信息并增加引用
func (lm *LockManager) acquire(sessionID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.sessionLocks[sessionID]
	if !ok {
		info = &LockInfo{Mutex: &sync.Mutex{}}
		lm.sessionLocks[sessionID] = info
	}
	info.refs++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.refs--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithSessionLock 在会话锁保护下执行操作
func (lm *LockManager) ExecuteWithSessionLock(sessionID string, fn func() error) error {
	info := lm.acquire(sessionID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// Forget 会话关闭后移除其锁（仍被使用时保留，由清理器回收）
func (lm *LockManager) Forget(sessionID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	if info, ok := lm.sessionLocks[sessionID]; ok && info.refs == 0 {
		delete(lm.sessionLocks, sessionID)
	}
}

// Size 当前锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.sessionLocks)
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-lm.stop:
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	for id, info := range lm.sessionLocks {
		if info.refs == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.sessionLocks, id)
			removed++
		}
	}
	return removed
}
