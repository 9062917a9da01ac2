// internal/services/preview_registry.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// PreviewHandle 上传媒体的临时预览，只在会话内有效，不写入文档
type PreviewHandle struct {
	Handle    string    `json:"handle"`
	SessionID string    `json:"-"`
	ContentID string    `json:"contentId"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// URL 预览地址
func (h *PreviewHandle) URL() string { return "/preview/" + h.Handle }

type previewKey struct {
	sessionID string
	contentID string
}

// PreviewRegistry 每个会话的每个内容最多保留一个预览句柄
type PreviewRegistry struct {
	fs        *storage.FileStorage
	mu        sync.Mutex
	byHandle  map[string]*PreviewHandle
	byContent map[previewKey]string
	logger    *utils.Logger
}

// NewPreviewRegistry 创建预览注册表，文件存放在 fs.BaseDir
func NewPreviewRegistry(fs *storage.FileStorage, logger *utils.Logger) *PreviewRegistry {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &PreviewRegistry{
		fs:        fs,
		byHandle:  make(map[string]*PreviewHandle),
		byContent: make(map[previewKey]string),
		logger:    logger,
	}
}

// Install 先释放该内容原有的句柄，再保存新的预览数据
func (r *PreviewRegistry) Install(sessionID, contentID, filename, mimeType string, data []byte) (*PreviewHandle, error) {
	key := previewKey{sessionID, contentID}

	r.mu.Lock()
	old, hadOld := r.byContent[key]
	if hadOld {
		delete(r.byContent, key)
		delete(r.byHandle, old)
	}
	r.mu.Unlock()
	if hadOld {
		r.deleteFile(old)
	}

	h := &PreviewHandle{
		Handle:    uuid.NewString(),
		SessionID: sessionID,
		ContentID: contentID,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}
	if err := r.fs.SaveTextFile("", h.Handle, data); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byContent[key] = h.Handle
	r.byHandle[h.Handle] = h
	r.mu.Unlock()
	return h, nil
}

// Lookup 按句柄查找预览，返回文件路径
func (r *PreviewRegistry) Lookup(handle string) (*PreviewHandle, string, bool) {
	r.mu.Lock()
	h, ok := r.byHandle[handle]
	r.mu.Unlock()
	if !ok {
		return nil, "", false
	}
	path, err := r.fs.Path("", handle)
	if err != nil {
		return nil, "", false
	}
	cp := *h
	return &cp, path, true
}

// ForContent 内容当前的预览
func (r *PreviewRegistry) ForContent(sessionID, contentID string) (*PreviewHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.byContent[previewKey{sessionID, contentID}]
	if !ok {
		return nil, false
	}
	cp := *r.byHandle[handle]
	return &cp, true
}

// URLs 会话内所有预览地址，contentID -> url
func (r *PreviewRegistry) URLs(sessionID string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for key, handle := range r.byContent {
		if key.sessionID == sessionID {
			out[key.contentID] = r.byHandle[handle].URL()
		}
	}
	return out
}

// Release 释放内容的预览句柄
func (r *PreviewRegistry) Release(sessionID, contentID string) bool {
	r.mu.Lock()
	key := previewKey{sessionID, contentID}
	handle, ok := r.byContent[key]
	if ok {
		delete(r.byContent, key)
		delete(r.byHandle, handle)
	}
	r.mu.Unlock()

	if ok {
		r.deleteFile(handle)
	}
	return ok
}

// ReleaseAll 会话结束时释放其全部预览
func (r *PreviewRegistry) ReleaseAll(sessionID string) int {
	r.mu.Lock()
	var handles []string
	for key, handle := range r.byContent {
		if key.sessionID == sessionID {
			handles = append(handles, handle)
			delete(r.byContent, key)
			delete(r.byHandle, handle)
		}
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.deleteFile(h)
	}
	return len(handles)
}

// Count 存活的预览数量
func (r *PreviewRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHandle)
}

func (r *PreviewRegistry) deleteFile(handle string) {
	if err := r.fs.DeleteFile("", handle); err != nil {
		r.logger.Warn("Failed to delete preview file", map[string]interface{}{
			"handle": handle,
			"error":  err,
		})
	}
}
