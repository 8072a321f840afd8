package logger

import (
	"fmt"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender то, что нужно уведомителю от tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier отправляет критические уведомления владельцу бота
type Notifier struct {
	bot     Sender
	ownerID int64
	log     *zap.Logger
}

func NewNotifier(bot Sender, ownerID int64, log *zap.Logger) *Notifier {
	return &Notifier{bot: bot, ownerID: ownerID, log: log}
}

// NotifyAdmin пишет в лог и, если задан владелец, дублирует сообщение в Telegram
func (n *Notifier) NotifyAdmin(msg string) {
	if n == nil {
		return
	}
	n.log.Warn("admin_alert", zap.String("message", msg))
	if n.bot == nil || n.ownerID == 0 {
		return
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.ownerID, "[ALERT] "+msg)); err != nil {
		n.log.Error("admin alert not delivered", zap.Error(err))
	}
}

// NotifyOnPanic ловит панику, логирует и уведомляет
func (n *Notifier) NotifyOnPanic(context string) {
	if r := recover(); r != nil {
		n.NotifyAdmin("Panic in " + context + ": " + toString(r))
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
