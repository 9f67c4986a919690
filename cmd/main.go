package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"llm-orchestrator/core"
	"llm-orchestrator/models"
)

func main() {
	// 创建日志器
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{})
	// 🔇 关闭 Gin Debug 模式输出
	gin.SetMode(gin.ReleaseMode)

	// 初始化数据库
	db, err := initDatabase(log)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}

	// 组装编排器：注册表 → 状态存储 → 配额/健康 → 调度器
	registry := core.NewRegistry(log)
	if !registry.HasFreeLLMConfigured() {
		log.Warn("⚠️ No provider credentials configured, every call will fail")
	}

	store := core.NewDBStateStore(db)
	quota := core.NewQuotaTracker(store, registry, log)
	health := core.NewHealthTracker(store, log)

	dispatcher := core.NewDispatcher(registry, quota, health, core.NewHTTPClient(), log)
	attemptLogger := core.NewAttemptLogger(db, log)
	dispatcher.SetAttemptLogger(attemptLogger)

	adminToken := loadAdminToken(log)

	// 创建Gin引擎
	engine := gin.New()
	engine.Use(gin.RecoveryWithWriter(log.Writer()))
	engine.Use(corsMiddleware())

	// 业务接口：限流 + 请求日志
	api := engine.Group("/")
	api.Use(RateLimitMiddleware(), requestLoggerMiddleware(log))
	{
		api.POST("/v1/call", handleCall(dispatcher, log))
	}

	setupRoutes(engine, registry, quota, health, attemptLogger, adminToken, log)

	port := 8000
	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}

	go func() {
		log.Infof("Starting LLM Orchestrator on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// 刷掉还没落库的审计日志
	attemptLogger.Close()
	log.Info("Server exited")
}

// initDatabase 初始化数据库（只在出错时记录 SQL 日志）
func initDatabase(log *logrus.Logger) (*gorm.DB, error) {
	dbPath := os.Getenv("ORCHESTRATOR_DB")
	if dbPath == "" {
		dbPath = "orchestrator.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Database initialized successfully")
	return db, nil
}

// loadAdminToken 管理令牌：环境变量优先，否则生成一次性随机令牌并打印
func loadAdminToken(log *logrus.Logger) string {
	if t := os.Getenv("ADMIN_TOKEN"); t != "" {
		return t
	}
	bytes := make([]byte, 16)
	rand.Read(bytes)
	token := "sk-admin-" + hex.EncodeToString(bytes)
	log.Infof("Generated admin token: %s", token)
	return token
}

// setupRoutes 设置路由
func setupRoutes(
	engine *gin.Engine,
	registry *core.Registry,
	quota *core.QuotaTracker,
	health *core.HealthTracker,
	attemptLogger *core.AttemptLogger,
	adminToken string,
	log *logrus.Logger,
) {
	// 公开路由 - 无需鉴权
	engine.GET("/health", handleHealth(registry))

	// 管理API路由组 - 诊断/管理操作，不在热路径上
	admin := engine.Group("/admin")
	admin.Use(AdminAuthMiddleware(adminToken))
	{
		admin.GET("/providers", handleListProviders(registry))
		admin.GET("/quota", handleQuotaStatus(quota))
		admin.GET("/quota/warning", handleQuotaWarning(quota))
		admin.GET("/provider-health", handleHealthStatus(health, registry))
		admin.POST("/provider-health/:provider/reset", handleHealthReset(health, registry))
		admin.GET("/attempts", handleRecentAttempts(attemptLogger))
		admin.GET("/ws/status", handleStatusFeed(quota, health, registry, log))
	}
}
