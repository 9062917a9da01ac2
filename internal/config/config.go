// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
)

// 存储后端
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port       string `json:"port"`
	DataDir    string `json:"data_dir"`
	MediaDir   string `json:"media_dir"`
	PreviewDir string `json:"preview_dir"`
	ExportDir  string `json:"export_dir"`
	LogDir     string `json:"log_dir"`
	DebugMode  bool   `json:"debug_mode"`

	// 文档存储
	ProjectFile     string `json:"project_file"`
	StorageBackend  string `json:"storage_backend"`
	SQLitePath      string `json:"sqlite_path"`
	DocLoadMaxTries int    `json:"doc_load_max_tries"`

	// HTTP
	AllowedOrigins []string `json:"allowed_origins"`
	SaveRateLimit  int      `json:"save_rate_limit"` // 每分钟保存次数
	MaxUploadMB    int      `json:"max_upload_mb"`
}

// Load 从环境变量加载配置
func Load() (*AppConfig, error) {
	// 尝试加载.env文件（可选）
	_ = godotenv.Load()

	dataDir := getEnvPath("DATA_DIR", "data")
	cfg := &AppConfig{
		Port:            getEnv("PORT", "8080"),
		DataDir:         dataDir,
		MediaDir:        getEnvPath("MEDIA_DIR", filepath.Join("static", "media")),
		PreviewDir:      getEnvPath("PREVIEW_DIR", filepath.Join(dataDir, "previews")),
		ExportDir:       getEnvPath("EXPORT_DIR", filepath.Join(dataDir, "exports")),
		LogDir:          getEnvPath("LOG_DIR", "logs"),
		DebugMode:       getEnvBool("DEBUG_MODE", true),
		ProjectFile:     getEnv("PROJECT_FILE", "project-config.json"),
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		SQLitePath:      getEnv("SQLITE_PATH", filepath.Join(dataDir, "hotspotdeck.db")),
		DocLoadMaxTries: getEnvInt("DOC_LOAD_MAX_TRIES", 4),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		SaveRateLimit:   getEnvInt("SAVE_RATE_LIMIT", 30),
		MaxUploadMB:     getEnvInt("MAX_UPLOAD_MB", 64),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置取值
func (c *AppConfig) Validate() error {
	switch c.StorageBackend {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("不支持的存储后端: %s", c.StorageBackend)
	}
	if c.DocLoadMaxTries < 1 {
		return fmt.Errorf("DOC_LOAD_MAX_TRIES 必须大于 0")
	}
	if c.ProjectFile == "" {
		return fmt.Errorf("PROJECT_FILE 不能为空")
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量，解析失败时使用默认值
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("警告: %s 不是有效整数，使用默认值 %d\n", key, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvList 逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// InitConfig 初始化配置管理器
func InitConfig() (*AppConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	configMutex.Lock()
	currentConfig = cfg
	configMutex.Unlock()

	return GetCurrentConfig(), nil
}

// SetCurrentConfig 直接替换当前配置（命令行参数覆盖、测试）
func SetCurrentConfig(cfg *AppConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	cp := *cfg
	cp.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	currentConfig = &cp
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 未初始化时直接从环境读取
		cfg, err := Load()
		if err != nil {
			cfg = &AppConfig{
				Port:            "8080",
				DataDir:         "data",
				ProjectFile:     "project-config.json",
				StorageBackend:  StorageFile,
				DocLoadMaxTries: 4,
				AllowedOrigins:  []string{"*"},
			}
		}
		return cfg
	}

	// 返回配置的副本
	configCopy := *currentConfig
	configCopy.AllowedOrigins = append([]string(nil), currentConfig.AllowedOrigins...)
	return &configCopy
}

// ProjectPath 项目文件相对数据目录的位置
func (c *AppConfig) ProjectPath() string {
	return filepath.Join(c.DataDir, c.ProjectFile)
}
