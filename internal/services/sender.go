package services

import (
	"errors"
	"strconv"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender то, что сервисам нужно от tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter уведомления владельцу бота (logger.Notifier)
type Alerter interface {
	NotifyAdmin(msg string)
}

var errBadChatID = errors.New("chat_id is not numeric")

// sendText отправляет сообщение по строковому chat_id
func sendText(bot Sender, chatID, text string) error {
	if bot == nil {
		return nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errBadChatID
	}
	_, err = bot.Send(tgbotapi.NewMessage(id, text))
	return err
}
