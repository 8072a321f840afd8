package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
)

const helpText = `Commands:
/deposit <amount> [email] - top up your wallet
/balance - wallet balance and recent transactions
/join <group_id> - buy access to a group
/memberships - your active memberships

Group admins:
/addgroup <group_id> <cost> - register a group for sale
/setcost <group_id> <cost>
/setwelcome <group_id> <text>
/setrules <group_id> <text>
/autokick <group_id> on|off
/mygroups - your groups, profit and members
/members <group_id> - active members of your group`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	userID := msg.From.ID
	cmd := "/" + msg.Command()

	if b.limiter.IsLimited(userID, cmd) {
		b.send(msg.Chat.ID, "Please slow down and try again in a few seconds.")
		return
	}

	if b.admin != nil && b.admin.Handle(ctx, msg) {
		return
	}

	switch cmd {
	case "/start":
		b.handleStart(ctx, msg)
	case "/deposit":
		b.handleDeposit(ctx, msg)
	case "/balance":
		b.handleBalance(ctx, msg)
	case "/join":
		b.handleJoin(ctx, msg)
	case "/memberships":
		b.handleMemberships(ctx, msg)
	case "/help":
		b.sendWithMarkup(msg.Chat.ID, helpText, b.replyKeyboard(userID))
	default:
		b.send(msg.Chat.ID, "Unknown command. Use /help to see what I can do.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	data := cq.Data
	switch {
	case strings.HasPrefix(data, payMethodPrefix):
		if b.limiter.IsLimited(cq.From.ID, payMethodPrefix) {
			b.answer(cq.ID, "Please wait a few seconds")
			return
		}
		b.handlePayMethod(ctx, cq, strings.TrimPrefix(data, payMethodPrefix))
	case strings.HasPrefix(data, joinPrefix):
		if b.limiter.IsLimited(cq.From.ID, joinPrefix) {
			b.answer(cq.ID, "Please wait a few seconds")
			return
		}
		b.handleJoinConfirm(ctx, cq, strings.TrimPrefix(data, joinPrefix))
	default:
		b.answer(cq.ID, "Unknown action")
	}
}

// callbackChat чат, из которого нажали кнопку; для старых сообщений Message бывает nil
func callbackChat(cq *tgbotapi.CallbackQuery) int64 {
	if cq.Message != nil && cq.Message.Chat != nil {
		return cq.Message.Chat.ID
	}
	return cq.From.ID
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := b.store.CreateUser(ctx, chatKey(msg.From.ID)); err != nil {
		b.log.Error("create user failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
	b.sendWithMarkup(msg.Chat.ID,
		"Welcome! Top up your wallet with /deposit and buy access to a group with /join.",
		b.replyKeyboard(msg.From.ID))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	key := chatKey(msg.From.ID)
	user, err := b.store.GetUser(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		b.send(msg.Chat.ID, "Your wallet is empty. Use /deposit to top it up.")
		return
	}
	if err != nil {
		b.log.Error("get user failed", zap.String("chat_id", key), zap.Error(err))
		b.send(msg.Chat.ID, "Could not load your wallet. Please try again later.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Wallet balance: $%s", user.Wallet.StringFixed(2))

	txs, err := b.store.ListTransactions(ctx, key)
	if err != nil {
		b.log.Warn("list transactions failed", zap.String("chat_id", key), zap.Error(err))
	}
	if len(txs) > 5 {
		txs = txs[len(txs)-5:]
	}
	if len(txs) > 0 {
		sb.WriteString("\n\nRecent transactions:")
		for i := len(txs) - 1; i >= 0; i-- {
			tx := txs[i]
			sign := "+"
			if tx.Amount.IsNegative() {
				sign = "-"
			}
			fmt.Fprintf(&sb, "\n%s %s$%s %s", tx.Timestamp.UTC().Format("2006-01-02"), sign, tx.Amount.Abs().StringFixed(2), tx.Provider)
		}
	}
	b.send(msg.Chat.ID, sb.String())
}

func (b *Bot) handleMemberships(ctx context.Context, msg *tgbotapi.Message) {
	members, err := b.store.ListMemberships(ctx, chatKey(msg.From.ID))
	if err != nil {
		b.log.Error("list memberships failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		b.send(msg.Chat.ID, "Could not load your memberships. Please try again later.")
		return
	}
	if len(members) == 0 {
		b.send(msg.Chat.ID, "You have no active memberships. Use /join <group_id> to buy one.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Your memberships:")
	now := time.Now()
	for _, m := range members {
		until := m.Expiry.UTC().Format("2006-01-02 15:04")
		// в льготном периоде: ещё active, но срок уже прошёл
		if m.IsExpired(now) {
			fmt.Fprintf(&sb, "\n%s: expired %s UTC, renew with /join %s", m.GroupChatID, until, m.GroupChatID)
			continue
		}
		fmt.Fprintf(&sb, "\n%s: active until %s UTC", m.GroupChatID, until)
	}
	b.send(msg.Chat.ID, sb.String())
}
