package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/access"
	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/conversation"
	"github.com/C4T-BuT-S4D/promobot/internal/dispatch"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/logging"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/C4T-BuT-S4D/promobot/internal/storage"
	"github.com/C4T-BuT-S4D/promobot/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

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

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	globalState, err := store.GetOrCreateGlobalState(initCtx)
	if err != nil {
		logrus.Fatalf("Failed to get or create global state: %v", err)
	}

	var (
		states conversation.Store = conversation.NewMemoryStore()
		locker reconcile.Locker   = reconcile.NewMutexLocker()
	)
	if cfg.StateBackend == config.StateBackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to parse redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(initCtx).Err(); err != nil {
			logrus.Fatalf("Failed to connect to redis: %v", err)
		}
		states = conversation.NewRedisStore(rdb, cfg.StateTTL)
		locker = reconcile.NewRedisLocker(rdb, cfg.JobTimeout)
	}
	logrus.Infof("keeping dialogue state in %s", cfg.StateBackend)

	bot, err := telebot.NewBot(telebot.Settings{
		Token: cfg.TelegramToken,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			LastUpdateID:   globalState.LastUpdateID,
			AllowedUpdates: []string{"message"},
		},
		// Handlers only enqueue, so arrival order is kept per sender.
		Synchronous: true,
		OnError: func(err error, c telebot.Context) {
			logrus.Errorf("telebot error: %v", err)
		},
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	disp := dispatch.New(cfg, dispatch.Deps{
		Guard:     access.NewGuard(store, cfg),
		States:    states,
		Users:     store,
		Ledger:    ledger.New(store, pattern, loc),
		Engine:    reconcile.NewEngine(store, reconcile.WithLocker(locker)),
		Window:    window,
		Exporter:  export.NewXLSX(loc),
		Transport: transport.NewTelebot(bot),
		Updates:   store,
	})

	for _, endpoint := range transport.MessageEndpoints {
		bot.Handle(endpoint, disp.HandleAnyUpdate)
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start()
	}()

	logrus.Infof("bot @%s started", bot.Me.Username)
	<-ctx.Done()

	bot.Stop()

	logrus.Info("waiting for services to finish")
	wg.Wait()
	disp.Wait()
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "10s")
	viper.SetDefault("typing_delay", "200ms")
	viper.SetDefault("broadcast_interval", "50ms")
	config.SetupCommon()
}
