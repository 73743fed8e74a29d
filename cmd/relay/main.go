package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/cache"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/config"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/handler"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/history"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/idgen"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/kafka"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-relay/internal/service"
	"github.com/weiawesome/wes-io-live/chat-relay/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/chat-relay/pkg/log"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "chat-relay"})
	logger := pkglog.L()

	logger.Info().
		Str("store", cfg.Store.Driver).
		Str("cache", cfg.Cache.Driver).
		Dur("cache_ttl", cfg.Cache.TTL).
		Msg("starting chat-relay")

	repo, err := openRepository(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open message store")
	}
	defer repo.Close()

	msgCache, err := openCache(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history cache")
	}
	defer msgCache.Close()

	ids, err := idgen.New(cfg.IDGen)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}

	producer := openProducer(cfg)

	h := hub.NewHub(cfg.WebSocket)
	go h.Run()

	gateway := repository.NewGateway(repo, ids)
	hist := history.NewHistoryService(gateway, msgCache, cfg.Cache.TTL)
	registry := presence.NewRegistry(h)
	svc := service.NewChatService(h, registry, gateway, hist, producer)

	ctx := pkglog.WithLogger(context.Background(), logger)
	if err := svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat service")
	}

	router := handler.NewRouter(
		handler.NewHTTPHandler(hist),
		handler.NewWSHandler(h, svc, cfg.WebSocket, cfg.CORS.AllowedOrigins),
		cfg.CORS,
		logger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("ws_path", cfg.WebSocket.Path).Msg("chat-relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-relay")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil { // 1. stop accepting
			logger.Error().Err(err).Msg("server shutdown error")
		}

		h.Stop() // 2. close all WS clients

		svc.Stop() // 3. flush kafka
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("chat-relay stopped")
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutdown timed out")
	}
}

func openRepository(cfg *config.Config) (repository.MessageRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return repository.NewMemoryMessageRepository(), nil
	case config.StoreCassandra:
		return repository.NewCassandraMessageRepository(cfg.Cassandra)
	case config.StoreSQL:
		db, err := database.New(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewGormMessageRepository(db)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func openCache(cfg *config.Config) (cache.MessageCache, error) {
	switch cfg.Cache.Driver {
	case config.CacheMemory:
		return cache.NewMemoryMessageCache(), nil
	case config.CacheRedis:
		return cache.NewRedisMessageCache(cfg.Redis, cfg.Cache.Prefix)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// openProducer falls back to a no-op stream when Kafka is disabled or
// unreachable; chat delivery never depends on it.
func openProducer(cfg *config.Config) kafka.MessageProducer {
	logger := pkglog.L()
	if !cfg.Kafka.Enabled {
		return kafka.NoopProducer{}
	}
	p, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create kafka producer, message stream disabled")
		return kafka.NoopProducer{}
	}
	logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka producer started")
	return p
}
