package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/srdflow/internal/backup"
	"github.com/example/srdflow/internal/config"
	"github.com/example/srdflow/internal/db"
	httpserver "github.com/example/srdflow/internal/http"
	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/mq"
	"github.com/example/srdflow/internal/notify"
	"github.com/example/srdflow/internal/realtime"
	"github.com/example/srdflow/internal/repository"
	"github.com/example/srdflow/internal/service"
	"github.com/example/srdflow/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	database, err := db.New(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	autoMigrate(database, logger)

	var publisher mq.Publisher
	rabbitPublisher, err := mq.NewRabbitPublisher(cfg.MQURL, cfg.MQEventExchange)
	if err != nil {
		logger.Warn("rabbitmq unavailable, continuing without events", zap.Error(err))
	} else {
		publisher = rabbitPublisher
	}

	srdRepo := repository.NewSRDRepository(database)
	deptRepo := repository.NewDepartmentRepository(database)
	stageRepo := repository.NewStageRepository(database)
	userRepo := repository.NewUserRepository(database)

	srdService := service.NewSRDService(database, srdRepo, deptRepo, stageRepo, publisher, logger, cfg.RefNoMaxAttempts)

	hub := realtime.NewHub(logger)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	bridge := realtime.NewBridge(rdb, cfg.RedisChannel, hub, logger)

	var backups *backup.Service
	if cfg.MinioEndpoint != "" {
		backups, err = backup.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, srdRepo, logger)
		if err != nil {
			logger.Warn("backup storage unavailable", zap.Error(err))
			backups = nil
		}
	}

	apiServer := httpserver.NewServer(srdService, srdRepo, deptRepo, stageRepo, hub, backups, cfg.JWTSecret, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go bridge.Run(ctx)

	var consumer mq.Consumer
	rabbitConsumer, err := mq.NewRabbitConsumer(cfg.MQURL, cfg.MQEventExchange, cfg.MQEventQueue)
	if err != nil {
		logger.Warn("rabbitmq consumer unavailable, notifications disabled", zap.Error(err))
	} else {
		consumer = rabbitConsumer
	}
	relay := worker.NewNotifierRelay(consumer, bridge, userRepo, notify.NewLogPusher(logger), logger)
	go relay.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: apiServer.Engine,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	if rabbitConsumer != nil {
		_ = rabbitConsumer.Close()
	}
	if rabbitPublisher != nil {
		_ = rabbitPublisher.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info("bye")
}

func autoMigrate(database *gorm.DB, logger *zap.Logger) {
	err := database.AutoMigrate(
		&models.Department{},
		&models.DepartmentField{},
		&models.ProductionStage{},
		&models.User{},
		&models.SRD{},
	)
	if err != nil {
		logger.Fatal("auto migrate", zap.Error(err))
	}
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
