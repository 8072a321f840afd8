package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
)

// handleJoin /join <group_id>: цена и кнопка подтверждения
func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.send(msg.Chat.ID, "Usage: /join <group_id>")
		return
	}
	group, err := b.store.GetGroup(ctx, args[0])
	if errors.Is(err, db.ErrNotFound) {
		b.send(msg.Chat.ID, "Group not found.")
		return
	}
	if err != nil {
		b.log.Error("get group failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		b.send(msg.Chat.ID, "Could not load the group. Please try again later.")
		return
	}

	price := group.Cost.StringFixed(2)
	text := fmt.Sprintf("Access to group %s costs $%s. The amount is taken from your wallet.", group.ChatID, price)
	if group.Settings.Rules != "" {
		text += "\n\nRules:\n" + group.Settings.Rules
	}
	b.sendWithMarkup(msg.Chat.ID, text, joinKeyboard(group.ChatID, "Pay $"+price))
}

func (b *Bot) handleJoinConfirm(ctx context.Context, cq *tgbotapi.CallbackQuery, groupChatID string) {
	chatID := callbackChat(cq)
	member, group, err := b.memberships.Buy(ctx, chatKey(cq.From.ID), groupChatID)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrInsufficientFunds),
		// группа нашлась, значит не найден кошелёк покупателя
		errors.Is(err, db.ErrNotFound) && group != nil:
		b.send(chatID, "Insufficient balance. Top up your wallet with /deposit.")
		b.answer(cq.ID, "")
		return
	case errors.Is(err, db.ErrNotFound):
		b.send(chatID, "Group not found.")
		b.answer(cq.ID, "")
		return
	default:
		b.log.Error("membership purchase failed",
			zap.Int64("user_id", cq.From.ID), zap.String("group_chat_id", groupChatID), zap.Error(err))
		b.send(chatID, "Could not complete the purchase. Please try again later.")
		b.answer(cq.ID, "")
		return
	}

	text := fmt.Sprintf("Payment successful! Your access to group %s is valid until %s UTC.",
		member.GroupChatID, member.Expiry.UTC().Format("2006-01-02 15:04"))
	if link := b.inviteLink(member.GroupChatID); link != "" {
		text += "\nJoin: " + link
	}
	if group.Settings.WelcomeMessage != "" {
		text += "\n\n" + group.Settings.WelcomeMessage
	}
	b.send(chatID, text)
	b.answer(cq.ID, "Membership activated")
}

// inviteLink одноразовая ссылка в группу на сутки; пусто, если бот не админ группы
func (b *Bot) inviteLink(groupChatID string) string {
	id, err := strconv.ParseInt(groupChatID, 10, 64)
	if err != nil {
		return ""
	}
	resp, err := b.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: id},
		ExpireDate:  int(time.Now().Add(24 * time.Hour).Unix()),
		MemberLimit: 1,
	})
	if err != nil || resp == nil || !resp.Ok {
		b.log.Debug("invite link not created", zap.String("group_chat_id", groupChatID), zap.Error(err))
		return ""
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return ""
	}
	return link.InviteLink
}
