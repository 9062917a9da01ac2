// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/HotspotDeck/internal/api"
	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/di"
	apperrors "github.com/Corphon/HotspotDeck/internal/errors"
	"github.com/Corphon/HotspotDeck/internal/services"
	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

const (
	// SessionIdleTimeout 超过该时间没有操作的会话会被关闭
	SessionIdleTimeout = 2 * time.Hour
	sessionSweep       = 5 * time.Minute
	metricsInterval    = 5 * time.Minute
)

// App 持有全部服务实例
type App struct {
	Config    *config.AppConfig
	Logger    *utils.Logger
	Metrics   *utils.DeckMetrics
	Documents *services.DocumentService
	Sessions  *services.SessionService
	Previews  *services.PreviewRegistry
	Export    *services.ExportService
	Render    *services.RenderService
	Locks     *services.LockManager
	WebSocket *api.WebSocketManager

	repo     storage.DocumentRepository
	stores   []*storage.FileStorage
	stopChan chan struct{}
	stopOnce sync.Once
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 返回 InitServices 创建的实例
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()
	return instance
}

// InitServices 按依赖顺序创建服务并注册到全局容器
func InitServices() error {
	a, err := New(config.GetCurrentConfig(), utils.GetLogger())
	if err != nil {
		return err
	}
	a.Register(di.GetContainer())

	mu.Lock()
	instance = a
	mu.Unlock()
	return nil
}

// New 创建应用；logger 为空时使用全局日志
func New(cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  utils.NewDeckMetricsWith(utils.GetMetricsCollector(), logger),
		stopChan: make(chan struct{}),
	}

	repo, err := a.openRepository()
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.repo = repo

	previewFS, err := a.openStore(cfg.PreviewDir)
	if err != nil {
		a.closeStores()
		repo.Close()
		return nil, err
	}
	exportFS, err := a.openStore(cfg.ExportDir)
	if err != nil {
		a.closeStores()
		repo.Close()
		return nil, err
	}

	a.Documents = services.NewDocumentService(repo, cfg.DocLoadMaxTries, a.Metrics, logger)
	a.Previews = services.NewPreviewRegistry(previewFS, logger)
	a.Locks = services.NewLockManager()
	a.Sessions = services.NewSessionService(a.Documents, a.Previews, a.Locks, a.Metrics, logger)
	a.Export = services.NewExportService(exportFS, logger)
	a.Render = services.NewRenderService(cfg.MediaDir, logger)

	a.WebSocket = api.NewWebSocketManager(cfg.AllowedOrigins, logger)
	a.Sessions.SetPublisher(a.WebSocket)

	logger.Info("Services initialized", map[string]interface{}{
		"repository":  repo.Name(),
		"preview_dir": cfg.PreviewDir,
		"export_dir":  cfg.ExportDir,
	})
	return a, nil
}

func (a *App) openStore(dir string) (*storage.FileStorage, error) {
	fs, err := storage.NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	a.stores = append(a.stores, fs)
	return fs, nil
}

func (a *App) closeStores() {
	for _, fs := range a.stores {
		fs.Close()
	}
	a.stores = nil
}

// openRepository 按 STORAGE_BACKEND 选择文档仓库
func (a *App) openRepository() (storage.DocumentRepository, error) {
	cfg := a.Config
	switch cfg.StorageBackend {
	case "", config.StorageFile:
		fs, err := a.openStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return storage.NewFileDocumentRepository(fs, cfg.ProjectFile), nil

	case config.StorageSQLite:
		repo, err := storage.NewSQLiteDocumentRepository(cfg.SQLitePath, cfg.ProjectFile)
		if err != nil {
			return nil, err
		}
		if err := a.seedSQLite(repo); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("未知的存储后端: %s", cfg.StorageBackend)
	}
}

// seedSQLite 数据库为空时导入数据目录中的项目文件
func (a *App) seedSQLite(repo *storage.SQLiteDocumentRepository) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.Load(ctx); err == nil || !apperrors.IsNotFoundError(err) {
		return nil
	}
	raw, err := os.ReadFile(a.Config.ProjectPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取项目文件失败: %w", err)
	}
	if err := repo.Save(ctx, raw); err != nil {
		return fmt.Errorf("导入项目文件失败: %w", err)
	}
	a.Logger.Info("Project file imported into SQLite", map[string]interface{}{
		"source": filepath.Base(a.Config.ProjectPath()),
		"db":     a.Config.SQLitePath,
	})
	return nil
}

// Register 把服务注册到容器
func (a *App) Register(c *di.Container) {
	c.Register(di.ServiceConfig, a.Config)
	c.Register(di.ServiceLogger, a.Logger)
	c.Register(di.ServiceMetrics, a.Metrics)
	c.Register(di.ServiceDocuments, a.Documents)
	c.Register(di.ServiceSessions, a.Sessions)
	c.Register(di.ServicePreviews, a.Previews)
	c.Register(di.ServiceExport, a.Export)
	c.Register(di.ServiceRender, a.Render)
	c.Register(di.ServiceEvents, a.WebSocket)
}

// Start 启动后台任务：WebSocket 管理器、空闲会话清理、指标汇总
func (a *App) Start(ctx context.Context) {
	a.WebSocket.Start()
	a.Metrics.StartMetricsCollection(ctx, metricsInterval)

	go func() {
		ticker := time.NewTicker(sessionSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := a.Sessions.CleanupIdle(SessionIdleTimeout); n > 0 {
					a.Logger.Info("Idle sessions closed", map[string]interface{}{"count": n})
				}
			case <-a.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown 关闭会话并释放资源，可重复调用
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		close(a.stopChan)
		a.Sessions.CloseAll()
		a.WebSocket.Stop()
		a.Locks.Stop()
		if err := a.repo.Close(); err != nil {
			a.Logger.Warn("Repository close failed", map[string]interface{}{"error": err})
		}
		a.closeStores()
		a.Logger.Info("Services stopped", nil)
		a.Logger.Sync()
	})
}
