package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/lnbits/scrum/api"
	"github.com/lnbits/scrum/config"
	"github.com/lnbits/scrum/domain"
	"github.com/lnbits/scrum/listener"
	"github.com/lnbits/scrum/payout"
	"github.com/lnbits/scrum/storage"
	"github.com/lnbits/scrum/wallet"
)

type stores interface {
	domain.BoardStore
	domain.TaskStore
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.BoardsTable, cfg.Storage.TasksTable)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	var store stores = table
	var locker domain.Locker
	var rc *redis.Client
	if cfg.Redis.Enabled() {
		opts, err := cfg.Redis.Options()
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatalf("redis ping: %v", err)
		}
		cancel()
		store = storage.NewCache(table, rc, cfg.Redis.BoardCacheTTL.Duration())
		locker = storage.NewRedisLocker(rc, cfg.Redis.TaskLockTTL.Duration())
		logger.Info("redis board cache and task locks enabled")
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, task locks are process local")
	}

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	resolver := payout.NewResolver(&http.Client{}, cfg.Payout.Timeout.Duration(), logger)
	payer := wallet.New(cfg.Wallet.URL, cfg.Wallet.Token, cfg.Wallet.Timeout.Duration())
	boards := domain.NewBoardService(store, store, logger)
	tasks := domain.NewTaskService(store, store, resolver, payer, locker, logger)

	src, err := listener.NewQueueSource(cfg.Storage.ConnectionString, cfg.Storage.PaymentsQueue)
	if err != nil {
		logger.Fatalf("payments queue: %v", err)
	}
	sub := listener.Start(ctx, src, domain.NoopPaymentHook{Logger: logger}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(api.BodyMiddleware(api.MaxBodySize))
	api.Register(e, boards, tasks, auth, logger)

	go func() {
		addr := cfg.HTTP.Addr()
		logger.WithField("addr", addr).Info("scrum api listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	sub.Stop()
	if rc != nil {
		_ = rc.Close()
	}
}

func newLogger(cfg config.LogConfig) *log.Logger {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	if cfg.TestMode {
		return api.NewTestAuth([]byte(cfg.TestSecret)), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/"), nil
}
