// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/HotspotDeck/internal/api"
	"github.com/Corphon/HotspotDeck/internal/app"
	"github.com/Corphon/HotspotDeck/internal/config"
	"github.com/Corphon/HotspotDeck/internal/di"
	"github.com/Corphon/HotspotDeck/internal/utils"
)

func main() {
	log.Println("🚀 启动 HotspotDeck 服务器...")

	// 1. 加载配置
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，端口: %s，存储: %s", cfg.Port, cfg.StorageBackend)

	// 2. 创建必要的目录
	createDirectories(cfg)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化日志
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "hotspotdeck.log")); err != nil {
		log.Printf("⚠️ 日志文件初始化失败，仅输出到控制台: %v", err)
	}
	if cfg.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}
	log.Println("✅ 日志系统初始化完成")

	// 4. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	container := di.GetContainer()
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(container.GetNames()))

	if err := performHealthCheck(container); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 5. 设置路由
	router, limiter, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	// 6. 启动后台任务
	ctx, cancel := context.WithCancel(context.Background())
	application := app.GetApp()
	application.Start(ctx)

	// 7. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 项目文档: http://localhost:%s/project-config.json", cfg.Port)

	setupGracefulShutdown(router, cfg.Port, func() {
		cancel()
		limiter.Stop()
		application.Shutdown()
	})
}

// 健康检查函数
func performHealthCheck(container *di.Container) error {
	criticalServices := []string{
		di.ServiceDocuments,
		di.ServiceSessions,
		di.ServicePreviews,
		di.ServiceEvents,
	}

	for _, serviceName := range criticalServices {
		if !container.Has(serviceName) {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	log.Println("✅ 服务健康检查通过")
	return nil
}

// 优雅关闭函数
func setupGracefulShutdown(router *gin.Engine, port string, cleanup func()) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	// 给定超时时间关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ 服务器强制关闭: %v", err)
	}
	cleanup()

	log.Println("✅ 服务器优雅关闭完成")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.AppConfig) {
	dirs := []string{
		cfg.DataDir,
		cfg.MediaDir,
		cfg.PreviewDir,
		cfg.ExportDir,
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
