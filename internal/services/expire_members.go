package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/metrics"
)

// MemberStore операции хранилища для обхода истёкших членств
type MemberStore interface {
	ListExpired(ctx context.Context, now time.Time) ([]db.Member, error)
	MarkExpired(ctx context.Context, chatID, groupChatID string) (bool, error)
	ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]db.Member, error)
	MarkExpiringNotified(ctx context.Context, chatID, groupChatID string) error
}

// ExpirySweeper помечает истёкшие членства и напоминает о скором окончании
type ExpirySweeper struct {
	store MemberStore
	bot   Sender
	alert Alerter
	grace time.Duration
	log   *zap.Logger
}

func NewExpirySweeper(store MemberStore, bot Sender, alert Alerter, grace time.Duration, log *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{store: store, bot: bot, alert: alert, grace: grace, log: log}
}

// Sweep помечает expired всех активных, у кого expiry < now - grace, и уведомляет их.
// Возвращает число помеченных. Удаление из чата сюда не входит.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.grace).UTC()
	members, err := s.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	marked := 0
	for _, m := range members {
		ok, err := s.store.MarkExpired(ctx, m.ChatID, m.GroupChatID)
		if err != nil {
			s.log.Error("mark expired failed", zap.String("chat_id", m.ChatID), zap.String("group_chat_id", m.GroupChatID), zap.Error(err))
			continue
		}
		if !ok {
			// уже продлено или помечено параллельно
			continue
		}
		marked++
		metrics.ExpiredMembersTotal.Inc()

		text := fmt.Sprintf("Your membership in group %s has expired. Use /join %s to renew.", m.GroupChatID, m.GroupChatID)
		if err := sendText(s.bot, m.ChatID, text); err != nil {
			s.log.Warn("expiry notice not delivered", zap.String("chat_id", m.ChatID), zap.Error(err))
		}
	}
	if marked > 0 {
		s.log.Info("memberships expired", zap.Int("count", marked))
	}
	return marked, nil
}

// Run для cron: ошибки уходят владельцу
func (s *ExpirySweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx, time.Now()); err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		if s.alert != nil {
			s.alert.NotifyAdmin("Expiry sweep failed: " + err.Error())
		}
	}
}
