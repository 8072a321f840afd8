package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"Membership-Telegram-bot/internal/payments"
)

const (
	payMethodPrefix = "paymethod_"
	joinPrefix      = "join_"
)

func (b *Bot) replyKeyboard(userID int64) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/deposit"),
			tgbotapi.NewKeyboardButton("/balance"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/memberships"),
			tgbotapi.NewKeyboardButton("/mygroups"),
			tgbotapi.NewKeyboardButton("/help"),
		),
	}
	if b.ownerID != 0 && userID == b.ownerID {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/admin_stats"),
			tgbotapi.NewKeyboardButton("/admin_backup"),
		))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// providerKeyboard по кнопке на провайдера
func providerKeyboard(providers []payments.Provider) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range providers {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Label(), payMethodPrefix+p.String()),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func joinKeyboard(groupChatID, label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, joinPrefix+groupChatID),
		),
	)
}
