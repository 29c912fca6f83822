// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fashion-advisor-go/internal/config"
	"fashion-advisor-go/internal/handler"
	"fashion-advisor-go/internal/repository"
	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/database"
	"fashion-advisor-go/pkg/fetcher"
	"fashion-advisor-go/pkg/kafka"
	"fashion-advisor-go/pkg/log"
	"fashion-advisor-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化登录态存储
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()
	kv := newKVStore(initCtx, cfg)

	// 4. 初始化远端客户端。token 在每次请求时从 SessionService 读取
	var sessions service.SessionService
	backend := api.NewClient(fetcher.New(cfg.Backend.BaseURL, nil), api.TokenFunc(func() string {
		return sessions.Token()
	}))
	sessions = service.NewSessionService(initCtx, backend, kv)
	log.Infof("远端服务地址: %s", cfg.Backend.BaseURL)

	// 5. 可选组件：会话事件投递与图片附件存储
	opts := service.ConversationOptions{
		NearbyDelay:        cfg.Chat.NearbyDelay(),
		LegacyOnlineSearch: cfg.Chat.LegacyOnlineSearch,
		VoiceEnabled:       cfg.Chat.VoiceEnabled,
		UserID:             func() string { return sessions.Current().UserID },
	}
	var publisher *kafka.TurnPublisher
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewTurnPublisher(cfg.Kafka)
		opts.Publisher = publisher
		log.Infof("会话事件将投递到 Kafka topic: %s", cfg.Kafka.Topic)
	}
	if cfg.MinIO.Enabled() {
		attachments, err := storage.NewAttachmentStore(initCtx, cfg.MinIO)
		if err != nil {
			log.Warnf("MinIO 初始化失败，图片将以内联形式保存: %v", err)
		} else {
			opts.Attachments = attachments
		}
	}

	// 6. 初始化 Service
	conversations := service.NewConversationService(backend, opts)
	services := handler.Services{
		Sessions:      sessions,
		Conversations: conversations,
		Catalog:       service.NewCatalogService(backend, cfg.Catalog.PageSize),
		Analysis:      service.NewAnalysisService(backend, cfg.Catalog.RetrievalK),
		Users:         service.NewUserService(backend, sessions),
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(services)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	conversations.CloseAll()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warnf("关闭 Kafka writer 失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// newKVStore 按配置选择 Redis 或进程内存储。Redis 不可用时退回内存。
func newKVStore(ctx context.Context, cfg config.Config) repository.KVStore {
	if cfg.Session.Store != "redis" {
		log.Info("登录态使用进程内存储")
		return repository.NewMemoryKVStore()
	}
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		log.Warnf("Redis 连接失败，登录态退回进程内存储: %v", err)
		return repository.NewMemoryKVStore()
	}
	log.Infof("登录态使用 Redis: %s", cfg.Database.Redis.Addr)
	return repository.NewRedisKVStore(rdb, "fashion:")
}
