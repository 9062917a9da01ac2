// internal/storage/repository.go
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
)

// DocumentRepository 持久化规范的项目文档
// 整体读写，不做部分更新
type DocumentRepository interface {
	// Load 返回原始 JSON，文档不存在时返回 NotFound
	Load(ctx context.Context) ([]byte, error)
	// Save 原子性地覆盖文档，raw 必须是合法 JSON
	Save(ctx context.Context, raw []byte) error
	Name() string
	Close() error
}

// PrettyJSON 校验并以两空格缩进格式化
func PrettyJSON(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, apperrors.NewValidationError("请求体不是合法的 JSON", nil)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return nil, apperrors.NewValidationError("格式化 JSON 失败", err)
	}
	return buf.Bytes(), nil
}

// FileDocumentRepository 将文档保存为数据目录下的 JSON 文件
type FileDocumentRepository struct {
	fs       *FileStorage
	filename string
}

// NewFileDocumentRepository 创建文件仓库
func NewFileDocumentRepository(fs *FileStorage, filename string) *FileDocumentRepository {
	return &FileDocumentRepository{fs: fs, filename: filename}
}

// Name 仓库名称
func (r *FileDocumentRepository) Name() string { return "file:" + r.filename }

// Load 读取项目文件
func (r *FileDocumentRepository) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.fs.LoadTextFile("", r.filename)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save 覆盖项目文件
func (r *FileDocumentRepository) Save(ctx context.Context, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pretty, err := PrettyJSON(raw)
	if err != nil {
		return err
	}
	if err := r.fs.SaveTextFile("", r.filename, pretty); err != nil {
		return fmt.Errorf("写入项目文件失败: %w", err)
	}
	return nil
}

// Close 停止文件存储的后台任务
func (r *FileDocumentRepository) Close() error {
	r.fs.Close()
	return nil
}
