package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/cache"
	"github.com/ohwonsuk/lockmoment-sub001/internal/config"
	internalhttp "github.com/ohwonsuk/lockmoment-sub001/internal/http"
	"github.com/ohwonsuk/lockmoment-sub001/internal/jobs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/migrate"
	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
	"github.com/ohwonsuk/lockmoment-sub001/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	defer pool.Close()
	store := repository.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	signer := qrsign.New([]byte(cfg.QRSecret))
	ids := service.UUIDGenerator{}
	sessions := service.NewSessionMinter(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	issuer := service.NewIssuer(store.Queries, store, signer, ids, cfg.LockTokenTTL, cfg.LinkTokenTTL, logger)
	linker := service.NewLinker(store, sessions, ids, logger)
	scanner := service.NewScanner(store.Queries, store, signer, linker, cache.New(redisClient, cfg.ScanLockTTL), loc, ids, logger)

	server := internalhttp.NewServer(cfg, store.Queries, store, issuer, scanner, sessions, ids, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartExpireJob(ctx, cfg, store.Queries, logger)

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
