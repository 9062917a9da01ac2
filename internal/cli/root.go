package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/models"
	"github.com/Corphon/HotspotDeck/internal/storage"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

// App 命令行的全局选项
type App struct {
	File       string // 直接指定项目文件，优先于配置
	Backend    string
	PrettyJSON bool
	Verbose    bool

	cfg    *config.AppConfig
	logger *utils.Logger
}

// NewRootCmd 创建 deckctl 根命令
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "deckctl",
		Short:        "HotspotDeck project tooling",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Report dangling references
  deckctl validate --file project-config.json

  # Drop sequence entries that point at missing contents
  deckctl repair --write

  # Export as Markdown to stdout
  deckctl export --format markdown

  # Walk a sequence the way the player does
  deckctl play --sequence seq-1 next next key:ArrowLeft hotspot:h1
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.GetCurrentConfig()
		if app.Backend != "" {
			cfg.StorageBackend = strings.ToLower(app.Backend)
		}
		app.cfg = cfg
		app.logger = utils.NewNop()
		if app.Verbose {
			app.logger = utils.GetLogger()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.File, "file", envOr("DECK_FILE", ""), "Path to a project-config.json (overrides DATA_DIR/PROJECT_FILE)")
	cmd.PersistentFlags().StringVar(&app.Backend, "backend", "", "Storage backend when --file is not set (file|sqlite)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Log to stdout")

	cmd.AddCommand(newInitCmd(app))
	cmd.AddCommand(newValidateCmd(app))
	cmd.AddCommand(newRepairCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newStatsCmd(app))
	cmd.AddCommand(newPlayCmd(app))

	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// openRepository 打开 --file 指定的文件或配置中的文档仓库
func openRepository(app *App) (storage.DocumentRepository, error) {
	if app.File != "" {
		fs, err := storage.NewFileStorage(filepath.Dir(app.File))
		if err != nil {
			return nil, err
		}
		return storage.NewFileDocumentRepository(fs, filepath.Base(app.File)), nil
	}

	cfg := app.cfg
	switch cfg.StorageBackend {
	case "", config.StorageFile:
		fs, err := storage.NewFileStorage(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return storage.NewFileDocumentRepository(fs, cfg.ProjectFile), nil
	case config.StorageSQLite:
		return storage.NewSQLiteDocumentRepository(cfg.SQLitePath, cfg.ProjectFile)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

// loadDocument 读取并解析项目文档
func loadDocument(ctx context.Context, app *App) (*models.Document, storage.DocumentRepository, error) {
	repo, err := openRepository(app)
	if err != nil {
		return nil, nil, err
	}
	raw, err := repo.Load(ctx)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	doc, err := models.ParseDocument(raw)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	return doc, repo, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if app.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
