package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/metrics"
	"Membership-Telegram-bot/internal/payments"
)

// WalletStore операции хранилища, нужные для зачисления
type WalletStore interface {
	AdjustWallet(ctx context.Context, adj db.Adjustment) (*db.User, error)
}

type CreditRequest struct {
	ChatID     string
	Amount     decimal.Decimal
	Provider   payments.Provider
	ExternalID string
}

// Crediter зачисляет подтверждённые платежи на кошелёк
type Crediter struct {
	store WalletStore
	bot   Sender
	log   *zap.Logger
}

func NewCrediter(store WalletStore, bot Sender, log *zap.Logger) *Crediter {
	return &Crediter{store: store, bot: bot, log: log}
}

func CreditMessage(amount decimal.Decimal) string {
	return fmt.Sprintf("Payment credited! Amount: $%s\nYour payment has been processed successfully.", amount.StringFixed(2))
}

// Credit пополняет кошелёк и пишет транзакцию одной операцией хранилища,
// затем отправляет подтверждение. Ошибка отправки не отменяет зачисление.
// Ошибка возвращается только для логирования, повторять вызов не нужно.
func (c *Crediter) Credit(ctx context.Context, req CreditRequest) error {
	provider := req.Provider.String()
	if req.ChatID == "" {
		metrics.CreditsTotal.WithLabelValues(provider, "skipped").Inc()
		return db.ErrMissingChatID
	}
	if !req.Amount.IsPositive() {
		metrics.CreditsTotal.WithLabelValues(provider, "skipped").Inc()
		return db.ErrInvalidAmount
	}

	user, err := c.store.AdjustWallet(ctx, db.Adjustment{
		ChatID:     req.ChatID,
		Amount:     req.Amount,
		Provider:   provider,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateTransaction) {
			metrics.CreditsTotal.WithLabelValues(provider, "duplicate").Inc()
		} else {
			metrics.CreditsTotal.WithLabelValues(provider, "error").Inc()
		}
		return fmt.Errorf("credit %s for chat %s: %w", req.Amount, req.ChatID, err)
	}
	metrics.CreditsTotal.WithLabelValues(provider, "ok").Inc()
	c.log.Info("wallet credited",
		zap.String("chat_id", req.ChatID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("provider", provider),
		zap.String("external_id", req.ExternalID),
		zap.String("wallet", user.Wallet.StringFixed(2)))

	if err := sendText(c.bot, req.ChatID, CreditMessage(req.Amount)); err != nil {
		c.log.Warn("credit confirmation not delivered", zap.String("chat_id", req.ChatID), zap.Error(err))
	}
	return nil
}
