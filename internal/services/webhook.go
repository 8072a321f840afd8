package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/metrics"
	"Membership-Telegram-bot/internal/payments"
)

type CoinbaseVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type FlutterwaveVerifier interface {
	VerifyTransaction(ctx context.Context, id string) (*payments.FlutterwaveTransaction, error)
}

type IPNVerifier interface {
	VerifyIPN(ctx context.Context, raw []byte) (bool, error)
}

// OrderCapturer списание одобренного заказа PayPal
type OrderCapturer interface {
	CaptureOrder(ctx context.Context, orderID string) (*payments.PayPalOrder, error)
}

// Creditor интерфейс над Crediter для обработчиков
type Creditor interface {
	Credit(ctx context.Context, req CreditRequest) error
}

// WebhookVerifiers проверки провайдеров; nil означает, что провайдер выключен
type WebhookVerifiers struct {
	Coinbase     CoinbaseVerifier
	Flutterwave  FlutterwaveVerifier
	PayPal       IPNVerifier
	// PayPalOrders нужен для возврата плательщика с одобренным заказом
	PayPalOrders OrderCapturer
}

// WebhookHandler принимает уведомления провайдеров: проверка, разбор, зачисление
type WebhookHandler struct {
	credit    Creditor
	verifiers WebhookVerifiers
	alert     Alerter
	log       *zap.Logger
}

func NewWebhookHandler(credit Creditor, verifiers WebhookVerifiers, alert Alerter, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{credit: credit, verifiers: verifiers, alert: alert, log: log}
}

// Enabled есть ли проверка для провайдера
func (h *WebhookHandler) Enabled(p payments.Provider) bool {
	switch p {
	case payments.Coinbase:
		return h.verifiers.Coinbase != nil
	case payments.Flutterwave:
		return h.verifiers.Flutterwave != nil
	case payments.PayPal:
		return h.verifiers.PayPal != nil
	}
	return false
}

// CapturesPayPalOrders включён ли возврат /paypal-return
func (h *WebhookHandler) CapturesPayPalOrders() bool {
	return h.verifiers.PayPalOrders != nil
}

func successJSON(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
}

// Coinbase POST /coinbase-webhook
func (h *WebhookHandler) Coinbase(c echo.Context) error {
	const provider = payments.Coinbase
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.outcome(provider, "bad_request")
		return c.String(http.StatusBadRequest, "cannot read body")
	}
	if !h.verifiers.Coinbase.VerifySignature(body, c.Request().Header.Get("X-CC-Webhook-Signature")) {
		h.log.Warn("coinbase webhook signature mismatch", zap.String("remote_ip", c.RealIP()))
		h.outcome(provider, "unauthorized")
		return c.String(http.StatusBadRequest, "invalid webhook signature")
	}
	event, err := payments.ParseCoinbaseEvent(body)
	if err != nil {
		h.log.Warn("coinbase webhook payload invalid", zap.Error(err))
		h.outcome(provider, "bad_request")
		return c.String(http.StatusBadRequest, err.Error())
	}
	if event.Type != payments.ChargeConfirmed {
		h.log.Debug("coinbase event ignored", zap.String("type", event.Type), zap.String("code", event.Data.Code))
		h.outcome(provider, "ignored")
		return successJSON(c)
	}

	h.apply(c.Request().Context(), CreditRequest{
		ChatID:     event.ChatID(),
		Amount:     event.Amount(),
		Provider:   provider,
		ExternalID: event.Data.Code,
	})
	return successJSON(c)
}

// Flutterwave POST /flutterwave-webhook. Тело уведомления не доверенное:
// сумма и chat_id берутся только из повторной проверки через API.
func (h *WebhookHandler) Flutterwave(c echo.Context) error {
	const provider = payments.Flutterwave
	var hook payments.FlutterwaveWebhook
	body, err := io.ReadAll(c.Request().Body)
	if err == nil {
		err = json.Unmarshal(body, &hook)
	}
	if err != nil {
		h.log.Warn("flutterwave webhook payload invalid", zap.Error(err))
		h.outcome(provider, "bad_request")
		return errorJSON(c, errors.New("invalid payload"))
	}
	if hook.PaymentStatus() != "successful" {
		h.outcome(provider, "ignored")
		return successJSON(c)
	}

	ctx := c.Request().Context()
	tx, err := h.verifiers.Flutterwave.VerifyTransaction(ctx, hook.TransactionID())
	if errors.Is(err, payments.ErrNotFound) {
		h.log.Warn("flutterwave transaction not verified", zap.String("id", hook.TransactionID()))
		h.outcome(provider, "unverified")
		return successJSON(c)
	}
	if err != nil {
		h.log.Error("flutterwave verification failed", zap.String("id", hook.TransactionID()), zap.Error(err))
		h.outcome(provider, "error")
		return errorJSON(c, err)
	}
	if !tx.Successful() {
		h.log.Warn("flutterwave transaction not successful",
			zap.String("id", hook.TransactionID()),
			zap.String("status", tx.Status),
			zap.String("data_status", tx.Data.Status))
		h.outcome(provider, "unverified")
		return successJSON(c)
	}

	h.apply(ctx, CreditRequest{
		ChatID:     tx.ChatID(),
		Amount:     tx.Data.Amount,
		Provider:   provider,
		ExternalID: string(tx.Data.ID),
	})
	return successJSON(c)
}

// PayPal POST /paypal-webhook (IPN)
func (h *WebhookHandler) PayPal(c echo.Context) error {
	const provider = payments.PayPal
	// тело нужно целиком: IPN проверяется повтором исходного сообщения
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.outcome(provider, "bad_request")
		return c.String(http.StatusBadRequest, err.Error())
	}
	form, err := url.ParseQuery(string(raw))
	if err != nil {
		h.outcome(provider, "bad_request")
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	verified, err := h.verifiers.PayPal.VerifyIPN(ctx, raw)
	if err != nil {
		h.log.Error("paypal ipn validation failed", zap.Error(err))
		h.outcome(provider, "error")
		return c.String(http.StatusBadRequest, err.Error())
	}
	if !verified {
		h.log.Warn("paypal ipn not verified", zap.String("txn_id", form.Get("txn_id")))
		h.outcome(provider, "unverified")
		return c.String(http.StatusOK, "OK")
	}
	if form.Get("payment_status") != "Completed" {
		h.log.Info("paypal payment not completed",
			zap.String("txn_id", form.Get("txn_id")),
			zap.String("payment_status", form.Get("payment_status")))
		h.outcome(provider, "ignored")
		return c.String(http.StatusOK, "OK")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(form.Get("mc_gross")))
	if err != nil {
		amount = decimal.Zero
	}
	h.apply(ctx, CreditRequest{
		ChatID:     strings.TrimSpace(form.Get("custom")),
		Amount:     amount,
		Provider:   provider,
		ExternalID: form.Get("txn_id"),
	})
	return c.String(http.StatusOK, "OK")
}

const (
	paypalReturnDone    = "Payment received. You can return to Telegram."
	paypalReturnPending = "Payment is not completed yet. You can return to Telegram."
)

// PayPalReturn GET /paypal-return?token=<order id>: сюда PayPal возвращает плательщика.
// Заказ списывается и зачисляется по id списания, тот же id придёт в IPN как txn_id,
// поэтому второй путь ничего не зачислит повторно.
func (h *WebhookHandler) PayPalReturn(c echo.Context) error {
	const provider = payments.PayPal
	orderID := strings.TrimSpace(c.QueryParam("token"))
	if orderID == "" {
		h.outcome(provider, "bad_request")
		return c.String(http.StatusBadRequest, "missing token")
	}

	ctx := c.Request().Context()
	order, err := h.verifiers.PayPalOrders.CaptureOrder(ctx, orderID)
	if errors.Is(err, payments.ErrNotFound) {
		h.log.Warn("paypal order not found", zap.String("order_id", orderID))
		h.outcome(provider, "unverified")
		return c.String(http.StatusOK, paypalReturnPending)
	}
	if err != nil {
		h.log.Error("paypal capture failed", zap.String("order_id", orderID), zap.Error(err))
		h.outcome(provider, "error")
		return c.String(http.StatusBadRequest, err.Error())
	}
	capture := order.CompletedCapture()
	if capture == nil {
		h.log.Info("paypal order not captured", zap.String("order_id", orderID), zap.String("status", order.Status))
		h.outcome(provider, "ignored")
		return c.String(http.StatusOK, paypalReturnPending)
	}

	chatID := strings.TrimSpace(capture.CustomID)
	if chatID == "" {
		chatID = order.ChatID()
	}
	h.apply(ctx, CreditRequest{
		ChatID:     chatID,
		Amount:     capture.Value(),
		Provider:   provider,
		ExternalID: capture.ID,
	})
	return c.String(http.StatusOK, paypalReturnDone)
}

// apply зачисляет и раскладывает результат по логам; ответ провайдеру от него не зависит
func (h *WebhookHandler) apply(ctx context.Context, req CreditRequest) {
	fields := []zap.Field{
		zap.Stringer("provider", req.Provider),
		zap.String("chat_id", req.ChatID),
		zap.String("amount", req.Amount.String()),
		zap.String("external_id", req.ExternalID),
	}
	err := h.credit.Credit(ctx, req)
	switch {
	case err == nil:
		h.outcome(req.Provider, "credited")
	case errors.Is(err, db.ErrMissingChatID), errors.Is(err, db.ErrInvalidAmount):
		h.log.Warn("verified webhook without chat_id or positive amount, skipped", fields...)
		h.outcome(req.Provider, "skipped")
	case errors.Is(err, db.ErrDuplicateTransaction):
		h.log.Info("duplicate webhook delivery ignored", fields...)
		h.outcome(req.Provider, "duplicate")
	default:
		h.log.Error("credit failed", append(fields, zap.Error(err))...)
		h.outcome(req.Provider, "error")
		if h.alert != nil {
			h.alert.NotifyAdmin("Credit failed for " + req.Provider.String() + " payment " + req.ExternalID + ": " + err.Error())
		}
	}
}

func (h *WebhookHandler) outcome(p payments.Provider, outcome string) {
	metrics.WebhooksTotal.WithLabelValues(p.String(), outcome).Inc()
}
