package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/cache"
	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/payments"
)

// API то, что боту нужно от tgbotapi.BotAPI
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Store interface {
	CreateUser(ctx context.Context, chatID string) (*db.User, error)
	GetUser(ctx context.Context, chatID string) (*db.User, error)
	ListTransactions(ctx context.Context, chatID string) ([]db.Transaction, error)
	GetGroup(ctx context.Context, chatID string) (*db.Group, error)
	ListMemberships(ctx context.Context, chatID string) ([]db.Member, error)
}

// Charger реестр платёжных провайдеров (payments.Registry)
type Charger interface {
	CreateCharge(ctx context.Context, p payments.Provider, req payments.ChargeRequest) (string, error)
	Enabled() []payments.Provider
	Limits() payments.Limits
}

type Purchaser interface {
	Buy(ctx context.Context, buyerChatID, groupChatID string) (*db.Member, *db.Group, error)
}

// AdminCommands команды администраторов групп и владельца бота.
// Handle возвращает false, если команда не админская.
type AdminCommands interface {
	Handle(ctx context.Context, msg *tgbotapi.Message) bool
}

// Alerter уведомления владельцу бота (logger.Notifier)
type Alerter interface {
	NotifyAdmin(msg string)
}

type Deps struct {
	API         API
	Store       Store
	Charges     Charger
	Sessions    cache.DepositSessions
	Memberships Purchaser
	Admin       AdminCommands
	Alert       Alerter
	OwnerID     int64
	Log         *zap.Logger
}

type Bot struct {
	api         API
	store       Store
	charges     Charger
	sessions    cache.DepositSessions
	memberships Purchaser
	admin       AdminCommands
	alert       Alerter
	limiter     *RateLimiter
	ownerID     int64
	log         *zap.Logger
}

func New(d Deps) *Bot {
	return &Bot{
		api:         d.API,
		store:       d.Store,
		charges:     d.Charges,
		sessions:    d.Sessions,
		memberships: d.Memberships,
		admin:       d.Admin,
		alert:       d.Alert,
		limiter:     NewRateLimiter(d.OwnerID),
		ownerID:     d.OwnerID,
		log:         d.Log,
	}
}

// Poll long polling до отмены ctx
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI) {
	b.log.Info("authorized", zap.String("account", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает один апдейт; паника не роняет цикл
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", zap.Int("update_id", update.UpdateID), zap.Any("panic", r))
			if b.alert != nil {
				b.alert.NotifyAdmin(fmt.Sprintf("Panic while handling update %d: %v", update.UpdateID, r))
			}
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) send(chatID int64, text string) {
	b.sendWithMarkup(chatID, text, nil)
}

func (b *Bot) sendWithMarkup(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Debug("callback answer failed", zap.Error(err))
	}
}

func chatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
