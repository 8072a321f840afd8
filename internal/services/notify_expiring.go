package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ExpiringWindow за сколько до окончания напоминать
const ExpiringWindow = 3 * 24 * time.Hour

// NotifyExpiring напоминает активным участникам, у которых доступ кончается в пределах within.
// Флаг ставится только после успешной отправки, чтобы неудачное напоминание повторилось.
func (s *ExpirySweeper) NotifyExpiring(ctx context.Context, now time.Time, within time.Duration) (int, error) {
	members, err := s.store.ListExpiring(ctx, now.UTC(), within)
	if err != nil {
		return 0, fmt.Errorf("list expiring: %w", err)
	}
	sent := 0
	for _, m := range members {
		text := fmt.Sprintf("Your membership in group %s expires on %s UTC. Renew: /join %s",
			m.GroupChatID, m.Expiry.UTC().Format("2006-01-02 15:04"), m.GroupChatID)
		if err := sendText(s.bot, m.ChatID, text); err != nil {
			s.log.Warn("expiring notice not delivered", zap.String("chat_id", m.ChatID), zap.Error(err))
			continue
		}
		if err := s.store.MarkExpiringNotified(ctx, m.ChatID, m.GroupChatID); err != nil {
			s.log.Error("mark notified failed", zap.String("chat_id", m.ChatID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// RunNotifyExpiring для cron
func (s *ExpirySweeper) RunNotifyExpiring(ctx context.Context) {
	if _, err := s.NotifyExpiring(ctx, time.Now(), ExpiringWindow); err != nil {
		s.log.Error("expiring notices failed", zap.Error(err))
		if s.alert != nil {
			s.alert.NotifyAdmin("Expiring notices failed: " + err.Error())
		}
	}
}
