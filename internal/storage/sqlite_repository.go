// internal/storage/sqlite_repository.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
)

// ProjectRecord 项目文档表，一行一个项目文件
type ProjectRecord struct {
	Name      string         `gorm:"primaryKey;size:255"`
	ProjectID string         `gorm:"index;size:255"`
	Body      datatypes.JSON `gorm:"not null"`
	Revision  int64          `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName 表名
func (ProjectRecord) TableName() string { return "project_documents" }

// SQLiteDocumentRepository 将文档保存在 SQLite 中
type SQLiteDocumentRepository struct {
	db   *gorm.DB
	name string
}

// NewSQLiteDocumentRepository 打开数据库并迁移表结构
func NewSQLiteDocumentRepository(path, name string) (*SQLiteDocumentRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	if err := db.AutoMigrate(&ProjectRecord{}); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}
	return &SQLiteDocumentRepository{db: db, name: name}, nil
}

// Name 仓库名称
func (r *SQLiteDocumentRepository) Name() string { return "sqlite:" + r.name }

// Load 读取文档
func (r *SQLiteDocumentRepository) Load(ctx context.Context) ([]byte, error) {
	var rec ProjectRecord
	err := r.db.WithContext(ctx).Where("name = ?", r.name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFoundError("项目文档不存在: "+r.name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("读取项目文档失败: %w", err)
	}
	return []byte(rec.Body), nil
}

// Save 插入或覆盖文档，每次保存递增版本号
func (r *SQLiteDocumentRepository) Save(ctx context.Context, raw []byte) error {
	pretty, err := PrettyJSON(raw)
	if err != nil {
		return err
	}
	var head struct {
		ProjectID string `json:"projectId"`
	}
	_ = json.Unmarshal(pretty, &head)

	rec := ProjectRecord{
		Name:      r.name,
		ProjectID: head.ProjectID,
		Body:      datatypes.JSON(pretty),
		Revision:  1,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"project_id": rec.ProjectID,
			"body":       rec.Body,
			"revision":   gorm.Expr("revision + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("保存项目文档失败: %w", err)
	}
	return nil
}

// Revision 当前版本号，不存在时为 0
func (r *SQLiteDocumentRepository) Revision(ctx context.Context) (int64, error) {
	var rec ProjectRecord
	err := r.db.WithContext(ctx).Select("revision").Where("name = ?", r.name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return rec.Revision, err
}

// Close 关闭数据库连接
func (r *SQLiteDocumentRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
