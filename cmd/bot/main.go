package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"Membership-Telegram-bot/config"
	"Membership-Telegram-bot/internal/admin"
	"Membership-Telegram-bot/internal/bot"
	"Membership-Telegram-bot/internal/cache"
	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/logger"
	"Membership-Telegram-bot/internal/payments"
	"Membership-Telegram-bot/internal/server"
	"Membership-Telegram-bot/internal/services"
)

const updateDedupTTL = 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		zl.Fatal("database", zap.Error(err))
	}
	store := db.NewStore(conn)

	botapi, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		zl.Fatal("failed to create bot", zap.Error(err))
	}
	notifier := logger.NewNotifier(botapi, cfg.OwnerID, zl)

	// Redis необязателен: без него дедупликация и сессии живут в памяти процесса
	rdb, err := cache.Connect(cfg.Redis)
	if err != nil {
		zl.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		rdb = nil
	}
	deduper := cache.NewUpdateDeduper(rdb, updateDedupTTL)
	sessions := cache.NewDepositSessions(rdb, cache.DepositTTL)

	gateways := payments.NewGateways(cfg)
	registry := payments.NewRegistry(payments.Limits{Min: cfg.MinimumDeposit, Max: cfg.MaximumDeposit}, zl, gateways.All()...)
	if len(registry.Enabled()) == 0 {
		zl.Warn("no payment providers configured, deposits are disabled")
	}

	crediter := services.NewCrediter(store, botapi, zl)
	var verifiers services.WebhookVerifiers
	if gateways.Coinbase != nil {
		verifiers.Coinbase = gateways.Coinbase
	}
	if gateways.Flutterwave != nil {
		verifiers.Flutterwave = gateways.Flutterwave
	}
	if gateways.PayPal != nil {
		verifiers.PayPal = gateways.PayPal
		verifiers.PayPalOrders = gateways.PayPal
	}
	webhooks := services.NewWebhookHandler(crediter, verifiers, notifier, zl)

	sweeper := services.NewExpirySweeper(store, botapi, notifier, cfg.MembershipGracePeriod, zl)
	memberships := services.NewMemberships(store, cfg.PlatformFee, cfg.MembershipDuration, zl)
	backups := admin.NewBackuper(cfg.DatabaseURL, "backups", notifier, zl)
	adminCmds := admin.NewHandler(botapi, store, backups, cfg.OwnerID, zl)

	b := bot.New(bot.Deps{
		API:         botapi,
		Store:       store,
		Charges:     registry,
		Sessions:    sessions,
		Memberships: memberships,
		Admin:       adminCmds,
		Alert:       notifier,
		OwnerID:     cfg.OwnerID,
		Log:         zl,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New()
	// Истёкшие членства
	c.AddFunc("@every 10m", func() {
		defer notifier.NotifyOnPanic("expiry sweep")
		sweeper.Run(ctx)
	})
	// Напоминания о скором окончании (раз в сутки в 10:00)
	c.AddFunc("0 10 * * *", func() {
		defer notifier.NotifyOnPanic("expiring notices")
		sweeper.RunNotifyExpiring(ctx)
	})
	// Бэкап БД раз в сутки
	c.AddFunc("0 3 * * *", func() {
		defer notifier.NotifyOnPanic("auto backup")
		backups.RunAuto(ctx)
	})
	c.Start()

	opts := server.Options{Deduper: deduper, Webhooks: webhooks, Alert: notifier, Log: zl}
	webhookMode := cfg.UpdateMode == "webhook"
	if webhookMode {
		opts.BotPath = cfg.WebhookSecretPath
		opts.OnUpdate = b.HandleUpdate
		wh, err := tgbotapi.NewWebhook(cfg.WebhookURL())
		if err != nil {
			zl.Fatal("webhook config", zap.Error(err))
		}
		if _, err := botapi.Request(wh); err != nil {
			zl.Fatal("set webhook", zap.Error(err))
		}
		zl.Info("telegram webhook registered", zap.String("path", "/"+cfg.WebhookSecretPath))
	} else {
		// getUpdates не работает, пока зарегистрирован webhook
		if _, err := botapi.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			zl.Warn("delete webhook failed", zap.Error(err))
		}
	}

	e := server.New(opts)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Port)
		zl.Info("http server started", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			notifier.NotifyAdmin("HTTP server error: " + err.Error())
			zl.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	if webhookMode {
		<-ctx.Done()
	} else {
		b.Poll(ctx, botapi)
	}

	zl.Info("shutting down")
	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
}
