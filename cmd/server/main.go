// Command server 启动 EchoGate 语音网关：设备 WebSocket 接入、
// 管理面 HTTP API 与到点提醒调度器。
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/cmd/bootstrap"
	handlers "github.com/voicebridge-ai/EchoGate/internal/handler"
	"github.com/voicebridge-ai/EchoGate/internal/scheduler"
	"github.com/voicebridge-ai/EchoGate/pkg/asr"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/cache"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/gateway"
	"github.com/voicebridge-ai/EchoGate/pkg/llm"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/middleware"
	"github.com/voicebridge-ai/EchoGate/pkg/music"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
	"github.com/voicebridge-ai/EchoGate/pkg/tools"
	"github.com/voicebridge-ai/EchoGate/pkg/tts"
)

// shutdownTimeout 关机时等在途 HTTP 请求收尾的时长
const shutdownTimeout = 10 * time.Second

func main() {
	bannerPath := flag.String("banner", "banner.txt", "启动横幅文件路径")
	initSQL := flag.String("init-sql", "", "启动前执行的初始化 SQL 文件，留空跳过")
	flag.Parse()

	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := bootstrap.PrintBannerFromFile(*bannerPath); err != nil {
		logger.Debug("[Server] 横幅文件不可用", zap.String("path", *bannerPath), zap.Error(err))
	}
	bootstrap.LogConfigInfo()

	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL,
		AutoMigrate: true,
		SeedNonProd: true,
	})
	if err != nil {
		logger.Fatal("[Server] 数据库初始化失败", zap.Error(err))
	}

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("[Server] 缓存初始化失败", zap.Error(err))
	}
	defer store.Close()

	secrets, err := auth.NewSecretBox(cfg.Auth.SecretKey)
	if err != nil {
		logger.Fatal("[Server] 初始化密钥失败", zap.Error(err))
	}

	// 共享的提供方客户端与三个语音服务
	clients := provider.NewClientCache(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	asrSvc := asr.NewService(cfg, clients)
	ttsSvc := tts.NewService(cfg, clients)
	llmSvc := llm.NewService(cfg, clients)

	toolReg := tools.NewRegistry()
	tools.RegisterBuiltins(toolReg, nil)

	source := &music.YTDLSource{
		YtdlpBin:    cfg.Music.YtdlpBin,
		FfmpegBin:   cfg.Music.FfmpegBin,
		APIKey:      cfg.Music.YouTubeAPIKey,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		MaxDuration: time.Duration(cfg.Music.MaxDurationS) * time.Second,
	}

	sessions := gateway.NewRegistry()
	pipe, err := gateway.NewPipeline(cfg, &gateway.Services{
		ASR:   asrSvc,
		TTS:   ttsSvc,
		LLM:   llmSvc,
		Tools: tools.NewExecutor(toolReg),
		Music: source,
		DB:    db,
	})
	if err != nil {
		logger.Fatal("[Server] 初始化流水线失败", zap.Error(err))
	}
	ws := gateway.NewHandler(cfg, db, store, secrets, sessions, pipe)

	if cfg.Server.Mode == "release" || cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.LoggerMiddleware(logger.Lg))

	handlers.NewHandlers(cfg, db, secrets, ws).Register(engine)

	sched := scheduler.New(db, sessions, ttsSvc, cfg.Audio.FrameDurationMs)
	if err := sched.Start(); err != nil {
		logger.Fatal("[Server] 启动提醒调度器失败", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("[Server] EchoGate 启动",
			zap.String("addr", cfg.Server.Addr),
			zap.String("wsPath", cfg.Server.WSPath),
			zap.String("mode", cfg.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("[Server] HTTP 服务异常退出", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("[Server] 收到退出信号，开始关闭")

	// 先停调度器，不再往连接上推新提醒
	sched.Stop()

	// 再通知在线设备服务端主动下线；Shutdown 不会等被劫持的 WebSocket 连接
	sessions.Range(func(s *gateway.Session) {
		s.Writer.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[Server] HTTP 关闭超时", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("[Server] 已退出")
}
