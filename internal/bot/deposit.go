package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/cache"
	"Membership-Telegram-bot/internal/payments"
)

const (
	linkText        = "Click the link below to complete your payment:\n"
	linkFailureText = "Sorry, there was an error generating the payment link. Please try again."
	depositUsage    = "Usage: /deposit <amount> [email]\nExample: /deposit 25 you@example.com"
)

// handleDeposit /deposit <amount> [email]: запоминает сумму и предлагает способ оплаты
func (b *Bot) handleDeposit(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	limits := b.charges.Limits()

	var d cache.Deposit
	if len(args) > 0 {
		amount, err := decimal.NewFromString(args[0])
		if err != nil || !amount.IsPositive() {
			b.send(msg.Chat.ID, depositUsage)
			return
		}
		if !limits.Contains(amount) {
			b.send(msg.Chat.ID, fmt.Sprintf("Amount must be between $%s and $%s.", limits.Min.StringFixed(2), limits.Max.StringFixed(2)))
			return
		}
		d.Amount = amount.Round(2)
	}
	if len(args) > 1 {
		d.Email = args[1]
	}
	d.CreatedAt = time.Now().UTC()

	var offered []payments.Provider
	for _, p := range b.charges.Enabled() {
		if d.Amount.IsZero() && p.RequiresAmount() {
			continue
		}
		offered = append(offered, p)
	}
	if len(offered) == 0 {
		b.send(msg.Chat.ID, depositUsage)
		return
	}

	if err := b.sessions.Save(ctx, msg.From.ID, d); err != nil {
		b.log.Error("save deposit session failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.send(msg.Chat.ID, linkFailureText)
		return
	}

	text := "Choose your payment method:"
	if !d.Amount.IsZero() {
		text = fmt.Sprintf("Deposit $%s. Choose your payment method:", d.Amount.StringFixed(2))
	}
	b.sendWithMarkup(msg.Chat.ID, text, providerKeyboard(offered))
}

// handlePayMethod создаёт платёж у выбранного провайдера и присылает ссылку
func (b *Bot) handlePayMethod(ctx context.Context, cq *tgbotapi.CallbackQuery, method string) {
	provider, err := payments.ParseProvider(method)
	if err != nil {
		b.answer(cq.ID, "Invalid payment method")
		return
	}
	chatID := callbackChat(cq)

	d, err := b.sessions.Load(ctx, cq.From.ID)
	if errors.Is(err, cache.ErrNoSession) {
		// без сессии остаётся только платёж на произвольную сумму
		d = &cache.Deposit{}
	} else if err != nil {
		b.log.Error("load deposit session failed", zap.Int64("user_id", cq.From.ID), zap.Error(err))
		d = &cache.Deposit{}
	}

	link, err := b.charges.CreateCharge(ctx, provider, payments.ChargeRequest{
		ChatID: chatKey(cq.From.ID),
		Amount: d.Amount,
		Email:  d.Email,
	})
	switch {
	case err == nil:
		_ = b.sessions.Delete(ctx, cq.From.ID)
		b.send(chatID, linkText+link)
		b.answer(cq.ID, "Payment link created")
	case errors.Is(err, payments.ErrAmountRequired):
		b.send(chatID, fmt.Sprintf("%s needs an amount. %s", provider.Label(), depositUsage))
		b.answer(cq.ID, "")
	case errors.Is(err, payments.ErrEmailRequired):
		b.send(chatID, fmt.Sprintf("%s needs an email address. %s", provider.Label(), depositUsage))
		b.answer(cq.ID, "")
	default:
		b.send(chatID, linkFailureText)
		b.answer(cq.ID, "")
	}
}
