package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/config"
	"github.com/Gopher0727/TaskRoom/internal/api"
	"github.com/Gopher0727/TaskRoom/internal/handler"
	"github.com/Gopher0727/TaskRoom/internal/pkg/blob"
	"github.com/Gopher0727/TaskRoom/internal/pkg/kafka"
	"github.com/Gopher0727/TaskRoom/internal/pkg/redis"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/service"
	"github.com/Gopher0727/TaskRoom/internal/storage"
	"github.com/Gopher0727/TaskRoom/internal/ws"
	"github.com/Gopher0727/TaskRoom/middleware/jwt"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
	"github.com/Gopher0727/TaskRoom/utils/ratelimit"
)

const (
	directoryCacheTTL = 10 * time.Minute
	eventBuffer       = 4096
	shutdownTimeout   = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	l, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := storage.Open(cfg)
	if err != nil {
		l.Fatal("database init failed", zap.Error(err))
	}
	if err := storage.Migrate(db); err != nil {
		l.Fatal("database migration failed", zap.Error(err))
	}
	store := repository.NewStore(db)

	// 初始化 Redis（可选）：在线状态、用户名缓存与限流
	var (
		presence redis.RedisClient
		limiter  ratelimit.Limiter = ratelimit.Unlimited{}
	)
	if cfg.Redis.Enabled {
		rdb, err := storage.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			l.Fatal("redis init failed", zap.Error(err))
		}
		client := redis.NewClient(rdb)
		defer client.Close()
		presence = client
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewWindowLimiter(rdb, l.Logger, cfg.RateLimit.Commands, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
		}
	}

	bus := service.NewEventBus()

	// 初始化 Kafka（可选）：提交后的图事件尽力投递
	var broker *service.BrokerPublisher
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			l.Warn("kafka producer unavailable, events stay in-process", zap.Error(err))
		} else {
			defer producer.Close()
			broker = service.NewBrokerPublisher(producer, l, eventBuffer)
			bus.Subscribe(broker)
			go broker.Run(ctx)
		}
	}

	blobs, err := blob.NewStore(blob.DefaultChunkSize, cfg.Files.CompressionLevel)
	if err != nil {
		l.Fatal("blob store init failed", zap.Error(err))
	}

	// 初始化服务层
	gate := service.NewAccessGate(store)
	directory := service.NewUserDirectory(store, presence, directoryCacheTTL, l)
	cascade := service.NewCascadeCoordinator(blobs, l)
	files := service.NewFileService(store, blobs, gate, cfg.Files.MaxSizeMB<<20, l)
	rooms := service.NewRoomService(store, gate, cascade, directory, bus, l)
	tasks := service.NewTaskService(store, gate, cascade, files, directory, bus, l)
	messages := service.NewMessageService(store, gate, cascade, files, bus, l)

	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// 初始化 WebSocket Hub
	hub := ws.NewHub(&cfg.Websocket, ws.Deps{
		Verifier:  tokens,
		Gate:      gate,
		Messages:  messages,
		Directory: directory,
		Presence:  presence,
		Limiter:   limiter,
	}, l)
	bus.Subscribe(hub)
	go hub.Run(ctx)

	router := api.NewRouter(cfg.Server.Mode, api.NewMiddlewareManager(tokens, limiter, l), l, api.Handlers{
		Room:      handler.NewRoomHandler(rooms),
		Task:      handler.NewTaskHandler(tasks),
		Thread:    handler.NewThreadHandler(messages),
		File:      handler.NewFileHandler(files),
		User:      handler.NewUserHandler(directory),
		WebSocket: hub.ServeWS,
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router,
	}
	go func() {
		l.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server stopped unexpectedly", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("http shutdown incomplete", zap.Error(err))
	}
	hub.Shutdown()
	if broker != nil {
		broker.Wait()
	}
}
