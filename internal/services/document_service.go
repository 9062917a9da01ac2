// internal/services/document_service.go
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// DocumentService 负责规范文档的加载与保存
type DocumentService struct {
	repo     storage.DocumentRepository
	maxTries uint
	interval time.Duration

	group   singleflight.Group
	metrics *utils.DeckMetrics
	logger  *utils.Logger
}

// NewDocumentService 创建文档服务
func NewDocumentService(repo storage.DocumentRepository, maxTries int, metrics *utils.DeckMetrics, logger *utils.Logger) *DocumentService {
	if maxTries < 1 {
		maxTries = 1
	}
	if metrics == nil {
		metrics = utils.NewDeckMetrics()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &DocumentService{
		repo:     repo,
		maxTries: uint(maxTries),
		interval: 200 * time.Millisecond,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetRetryInterval 设置首次重试间隔
func (s *DocumentService) SetRetryInterval(d time.Duration) {
	s.interval = d
}

// Repository 底层仓库
func (s *DocumentService) Repository() storage.DocumentRepository { return s.repo }

// LoadRaw 读取原始 JSON（带重试），并发调用合并为一次读取
// 共享的读取不随某个调用方取消，每个调用方只等待自己的 ctx
func (s *DocumentService) LoadRaw(ctx context.Context) ([]byte, error) {
	ch := s.group.DoChan("load", func() (interface{}, error) {
		return s.loadWithRetry(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, apperrors.NewUnavailableError("加载项目文档已取消", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Load 读取并解析文档
func (s *DocumentService) Load(ctx context.Context) (*models.Document, error) {
	raw, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := models.ParseDocument(raw)
	if err != nil {
		return nil, apperrors.NewUnavailableError("项目文档格式错误", err)
	}
	if issues := doc.CheckIntegrity(); len(issues) > 0 {
		s.logger.Warn("Document has dangling references", map[string]interface{}{
			"project_id": doc.ProjectID,
			"issues":     len(issues),
		})
	}
	return doc, nil
}

func (s *DocumentService) loadWithRetry(ctx context.Context) ([]byte, error) {
	start := time.Now()
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval

	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		data, err := s.repo.Load(ctx)
		if err != nil {
			// 文档不存在或格式错误时重试没有意义
			if apperrors.IsNotFoundError(err) {
				return nil, backoff.Permanent(err)
			}
			s.logger.Warn("Document load attempt failed", map[string]interface{}{
				"repository": s.repo.Name(),
				"attempt":    attempts,
				"error":      err,
			})
			return nil, err
		}
		if !json.Valid(data) {
			return nil, backoff.Permanent(apperrors.NewValidationError("项目文档不是合法的 JSON", nil))
		}
		return data, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.maxTries))

	s.metrics.RecordLoad(err == nil, attempts, time.Since(start))
	if err != nil {
		s.logger.Error("Document load failed", map[string]interface{}{
			"repository": s.repo.Name(),
			"attempts":   attempts,
			"error":      err,
		})
		return nil, apperrors.WrapError(err, "加载项目文档失败", apperrors.ErrorTypeUnavailable)
	}
	return raw, nil
}

// SaveRaw 覆盖规范文档；raw 必须是合法 JSON
func (s *DocumentService) SaveRaw(ctx context.Context, raw []byte) models.SaveResult {
	start := time.Now()
	err := s.repo.Save(ctx, raw)
	s.metrics.RecordSave(err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("Error saving config", map[string]interface{}{
			"repository": s.repo.Name(),
			"error":      err,
		})
		return models.SaveResult{Success: false, Message: models.SaveErrorMessage}
	}
	s.logger.Info("Project config saved successfully", map[string]interface{}{"repository": s.repo.Name()})
	return models.SaveResult{Success: true, Message: models.SaveOKMessage}
}

// Save 序列化并保存文档
func (s *DocumentService) Save(ctx context.Context, doc *models.Document) models.SaveResult {
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("Error serializing document", map[string]interface{}{"error": err})
		return models.SaveResult{Success: false, Message: models.SaveErrorMessage}
	}
	return s.SaveRaw(ctx, raw)
}
