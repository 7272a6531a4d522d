package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/api"
	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/logging"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	if cfg.APIToken == "" {
		logrus.Fatalf("api_token must be set")
	}

	loc, err := cfg.Location()
	if err != nil {
		logrus.Fatalf("Failed to load timezone: %v", err)
	}
	pattern, err := cfg.PromoPattern()
	if err != nil {
		logrus.Fatalf("Failed to compile promo pattern: %v", err)
	}
	window, err := reconcile.ParseWindow(cfg.ReconcileFrom, cfg.ReconcileTo, loc)
	if err != nil {
		logrus.Fatalf("Failed to parse reconcile window: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store := storage.New(db)
	initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	// Without redis the lock is per process and does not exclude the bot.
	var locker reconcile.Locker = reconcile.NewMutexLocker()
	if cfg.StateBackend == config.StateBackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to parse redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		locker = reconcile.NewRedisLocker(rdb, cfg.JobTimeout)
	}

	service := api.NewService(
		cfg,
		ledger.New(store, pattern, loc),
		reconcile.NewEngine(store, reconcile.WithLocker(locker)),
		window,
		export.NewXLSX(loc),
		store,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logrus.WithFields(logrus.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			}).Info("request")
			return nil
		},
	}))
	service.Register(e)

	go func() {
		if err := e.Start(cfg.APIListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start api: %v", err)
		}
	}()

	<-ctx.Done()

	logrus.Info("shutting down api")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Failed to shut down api: %v", err)
	}
}

func setupConfig() {
	viper.SetDefault("api_listen", ":8080")
	config.SetupCommon()
}
