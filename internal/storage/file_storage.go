// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
)

// FileStorage 提供文件存储服务
type FileStorage struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	// 简单缓存
	cache        map[string]*CacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int

	stopOnce sync.Once
	stop     chan struct{}
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	fs := &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]*CacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
		stop:         make(chan struct{}),
	}

	// 启动缓存清理
	fs.StartCacheCleanup(2 * time.Minute)

	return fs, nil
}

// Close 停止缓存清理
func (fs *FileStorage) Close() {
	fs.stopOnce.Do(func() { close(fs.stop) })
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// Path 返回文件的完整路径，拒绝逃出 BaseDir 的名称
func (fs *FileStorage) Path(dirPath, filename string) (string, error) {
	full := filepath.Join(fs.BaseDir, dirPath, filename)
	rel, err := filepath.Rel(fs.BaseDir, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", apperrors.NewValidationError("非法文件路径: "+filepath.Join(dirPath, filename), err)
	}
	return full, nil
}

// SaveTextFile 保存文本文件（临时文件 + 重命名）
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullPath, err := fs.Path(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			fmt.Printf("Warning: failed to clean up temporary file %s after rename failure: %v\n", tempPath, removeErr)
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// SaveJSONFile 保存JSON文件
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	return fs.SaveTextFile(dirPath, filename, content)
}

// LoadTextFile 读取文本文件，文件不存在时返回 NotFound
func (fs *FileStorage) LoadTextFile(dirPath, filename string) ([]byte, error) {
	fullPath, err := fs.Path(dirPath, filename)
	if err != nil {
		return nil, err
	}

	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	// 双重检查缓存
	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("文件不存在: "+filepath.Join(dirPath, filename), err)
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	fs.updateCache(fullPath, content)
	return content, nil
}

// FileExists 检查文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	fullPath, err := fs.Path(dirPath, filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// DeleteFile 删除文件
func (fs *FileStorage) DeleteFile(dirPath, filename string) error {
	fullPath, err := fs.Path(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFoundError("文件不存在: "+filepath.Join(dirPath, filename), err)
		}
		return fmt.Errorf("删除文件失败: %w", err)
	}

	fs.invalidateCache(fullPath)
	fs.fileLocks.Delete(fullPath)
	return nil
}

func (fs *FileStorage) cached(path string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()
	if entry, ok := fs.cache[path]; ok && time.Since(entry.Timestamp) < fs.cacheExpiry {
		return entry.Data, true
	}
	return nil, false
}

// 缓存管理
func (fs *FileStorage) updateCache(path string, data []byte) {
	fs.cacheMutex.Lock()
	fs.cache[path] = &CacheEntry{Data: data, Timestamp: time.Now()}
	fs.cacheMutex.Unlock()

	fs.enforceMaxCacheSize()
}

// StartCacheCleanup 定期清理过期缓存，Close 后停止
func (fs *FileStorage) StartCacheCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-fs.stop:
				return
			case <-ticker.C:
				fs.cleanupExpiredCache()
			}
		}
	}()
}

// 清理过期缓存
func (fs *FileStorage) cleanupExpiredCache() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	now := time.Now()
	for path, entry := range fs.cache {
		if now.Sub(entry.Timestamp) > fs.cacheExpiry {
			delete(fs.cache, path)
		}
	}
}

// enforceMaxCacheSize removes the oldest entries above the size limit
func (fs *FileStorage) enforceMaxCacheSize() {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	if len(fs.cache) <= fs.maxCacheSize {
		return
	}

	type keyed struct {
		key string
		ts  time.Time
	}
	entries := make([]keyed, 0, len(fs.cache))
	for key, entry := range fs.cache {
		entries = append(entries, keyed{key, entry.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

	for _, e := range entries[:len(entries)-fs.maxCacheSize] {
		delete(fs.cache, e.key)
	}
}

// invalidateCache 清除指定路径的缓存
func (fs *FileStorage) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()
	delete(fs.cache, path)
}
