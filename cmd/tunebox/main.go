package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rx3lixir/tunebox/internal/config"
	"github.com/rx3lixir/tunebox/internal/feed"
	"github.com/rx3lixir/tunebox/internal/room"
	"github.com/rx3lixir/tunebox/internal/search"
	"github.com/rx3lixir/tunebox/internal/server"
	"github.com/rx3lixir/tunebox/internal/storage/postgres"
	"github.com/rx3lixir/tunebox/internal/storage/s3"
	"github.com/rx3lixir/tunebox/internal/sweeper"
	"github.com/rx3lixir/tunebox/internal/ws"
	"github.com/rx3lixir/tunebox/pkg/jwt"
	"github.com/rx3lixir/tunebox/pkg/logger"
)

const hostTokenDuration = time.Hour * 24 * 30

func main() {
	// Initializing and validating config
	cm, err := config.NewConfigManager("internal/config/config.yaml")
	if err != nil {
		fmt.Printf("Error getting config file: %v", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// Initializing logger
	log, err := logger.New(logger.Config{
		Env:       c.GeneralParams.Env,
		AddSource: false,
	})
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}

	log.Info(
		"Config loaded successfully!",
		"env", c.GeneralParams.Env,
		"http_server_port", c.HttpServerParams.Port,
		"http_server_address", c.HttpServerParams.Address,
		"database", c.MainDBParams.Name,
	)

	// Global context with cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Creating database connection
	pool, err := postgres.NewPool(ctx, c.MainDBParams.GetDSN())
	if err != nil {
		log.Error(
			"Failed to create postgres pool",
			"error", err,
			"db", c.MainDBParams.Name,
		)
		os.Exit(1)
	}
	defer pool.Close()

	log.Info(
		"Database connection established",
		"db", c.MainDBParams.Name,
	)

	store := room.NewPostgresStore(pool)

	// Change feed: one LISTEN connection multiplexed into per-room
	// subscriptions
	listener := feed.NewListener(pool, store.FetchRow, log)
	go listener.Run(ctx)

	// Periodic garbage collection of abandoned rooms
	sweep := sweeper.New(store, log,
		time.Duration(c.SweepParams.IntervalMinutes)*time.Minute,
		time.Duration(c.SweepParams.MaxIdleMinutes)*time.Minute,
	)
	go sweep.Run(ctx)

	// Optional search-result cache
	var rdb *redis.Client
	if c.RedisParams.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     c.RedisParams.Addr,
			Password: c.RedisParams.Password,
			DB:       c.RedisParams.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable, search cache disabled", "error", err)
			rdb = nil
		}
	}
	searchCache := search.NewCache(rdb,
		time.Duration(c.RedisParams.TTLSeconds)*time.Second, log)

	// Optional thumbnail mirror
	var thumbs *s3.ThumbStore
	if c.S3Params.Endpoint != "" {
		minioClient, err := s3.NewClient(
			c.S3Params.Endpoint,
			c.S3Params.AccessKeyID,
			c.S3Params.SecretAccessKey,
			c.S3Params.UseSSL,
		)
		if err != nil {
			log.Error("Failed to create minio client", "error", err)
			os.Exit(1)
		}
		if err := s3.EnsureBucket(ctx, minioClient, c.S3Params.BucketName); err != nil {
			log.Error("Failed to ensure bucket", "error", err)
			os.Exit(1)
		}
		thumbs = s3.NewThumbStore(minioClient, c.S3Params.BucketName, log)
	}

	// JWT service issues host tokens so a reloading host resumes ownership
	jwtService := jwt.NewService(c.GeneralParams.SecretKey, hostTokenDuration)

	searchClient := search.NewClient(c.YoutubeParams.APIKeys, c.YoutubeParams.MaxResults, log)
	searchHandler := search.NewHandler(searchClient, searchCache, thumbs, log)

	roomHandler := room.NewHandler(store, jwtService, log, 0)

	wsManager := ws.NewManager(store, listener, log)
	wsHandler := ws.NewHandler(wsManager, jwtService, log)

	httpServer := server.New(c.HttpServerParams.GetAddress(), server.Deps{
		RoomHandler:   roomHandler,
		SearchHandler: searchHandler,
		WSHandler:     wsHandler,
		Health: server.HealthStatus{
			SearchCredentials: len(c.YoutubeParams.APIKeys) > 0,
			Database:          c.MainDBParams.Host != "",
			ObjectStorage:     thumbs != nil,
			Cache:             rdb != nil,
		},
		FeedMetrics:   listener.Metrics,
		SessionCounts: wsManager.SessionCount,
		Log:           log,
	})

	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or error
	select {
	case err := <-serverErrors:
		log.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		log.Info("Closing websocket sessions...")
		wsManager.Shutdown(shutdownCtx)

		log.Info("Shutting down HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", "error", err)
		}
	}
}
