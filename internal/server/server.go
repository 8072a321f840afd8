package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/cache"
	"Membership-Telegram-bot/internal/payments"
	"Membership-Telegram-bot/internal/services"
)

// UpdateFunc обработчик апдейта Telegram в режиме webhook
type UpdateFunc func(ctx context.Context, update tgbotapi.Update)

type Options struct {
	// BotPath секретный путь без ведущего "/"; пусто, если бот работает через polling
	BotPath  string
	OnUpdate UpdateFunc
	Deduper  cache.UpdateDeduper
	Webhooks *services.WebhookHandler
	Alert    services.Alerter
	Log      *zap.Logger
}

// New собирает echo-роутер со всеми маршрутами
func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recoverer(opts.Alert, opts.Log))
	e.Use(requestLogger(opts.Log))

	if opts.BotPath != "" && opts.OnUpdate != nil {
		g := e.Group("/" + strings.Trim(opts.BotPath, "/"))
		g.Use(TelegramUpdateDedup(opts.Deduper))
		g.POST("", telegramWebhook(opts.OnUpdate, opts.Log))
	} else {
		opts.Log.Info("telegram webhook route disabled (bot update mode is polling)")
	}

	if h := opts.Webhooks; h != nil {
		if h.Enabled(payments.Coinbase) {
			e.POST("/coinbase-webhook", h.Coinbase)
		}
		if h.Enabled(payments.Flutterwave) {
			e.POST("/flutterwave-webhook", h.Flutterwave)
		}
		if h.Enabled(payments.PayPal) {
			e.POST("/paypal-webhook", h.PayPal)
		}
		if h.CapturesPayPalOrders() {
			e.GET("/paypal-return", h.PayPalReturn)
		}
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// telegramWebhook принимает только JSON: иначе 403 "error"
func telegramWebhook(onUpdate UpdateFunc, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ct := c.Request().Header.Get(echo.HeaderContentType)
		if !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			return c.String(http.StatusForbidden, "error")
		}
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "error")
		}
		var update tgbotapi.Update
		if err := json.Unmarshal(body, &update); err != nil {
			log.Warn("telegram update not parsed", zap.Error(err))
			// Telegram повторяет доставку на не-2xx; битый апдейт повторять бессмысленно
			return c.String(http.StatusOK, "ok")
		}
		onUpdate(c.Request().Context(), update)
		return c.String(http.StatusOK, "ok")
	}
}

// recoverer ловит панику обработчика, отвечает 500 и уведомляет владельца
func recoverer(alert services.Alerter, log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error("panic in http handler",
				zap.String("path", c.Path()), zap.Error(err), zap.ByteString("stack", stack))
			if alert != nil {
				alert.NotifyAdmin("Panic in HTTP handler " + c.Path() + ": " + err.Error())
			}
			return err
		},
	})
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.URI == "/metrics" || v.URI == "/health" {
				return nil
			}
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				log.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}
