package db

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Purchase оплата доступа к группе с кошелька
type Purchase struct {
	BuyerChatID string
	GroupChatID string
	Cost        decimal.Decimal
	Fee         decimal.Decimal // комиссия платформы, не идёт в прибыль группы
	Duration    time.Duration
}

func (s *Store) CreateMember(ctx context.Context, chatID, groupChatID string, expiry time.Time) (*Member, error) {
	if chatID == "" || groupChatID == "" {
		return nil, ErrMissingChatID
	}
	member := Member{
		ChatID:      chatID,
		GroupChatID: groupChatID,
		Expiry:      expiry.UTC(),
		JoinedAt:    s.now(),
		Status:      MemberActive,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &member, nil
}

// GetMember возвращает участника вместе с историей оплат
func (s *Store) GetMember(ctx context.Context, chatID, groupChatID string) (*Member, error) {
	var member Member
	q := s.db.WithContext(ctx)
	if err := q.Where("chat_id = ? AND group_chat_id = ?", chatID, groupChatID).First(&member).Error; err != nil {
		return nil, notFound(err)
	}
	if err := q.Where("chat_id = ? AND group_chat_id = ?", chatID, groupChatID).
		Order("id asc").Find(&member.PaymentHistory).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *Store) ListActiveMembers(ctx context.Context, groupChatID string) ([]Member, error) {
	var members []Member
	err := s.db.WithContext(ctx).
		Where("group_chat_id = ? AND status = ?", groupChatID, MemberActive).
		Order("expiry asc").Find(&members).Error
	return members, err
}

// ListMemberships активные членства пользователя
func (s *Store) ListMemberships(ctx context.Context, chatID string) ([]Member, error) {
	var members []Member
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND status = ?", chatID, MemberActive).
		Order("expiry asc").Find(&members).Error
	return members, err
}

func (s *Store) CountActiveMembers(ctx context.Context, groupChatID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Member{}).
		Where("group_chat_id = ? AND status = ?", groupChatID, MemberActive).Count(&count).Error
	return count, err
}

// ListExpired активные участники с expiry < now. Уже истёкшие не возвращаются.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]Member, error) {
	var members []Member
	err := s.db.WithContext(ctx).
		Where("status = ? AND expiry < ?", MemberActive, now.UTC()).
		Order("expiry asc").Find(&members).Error
	return members, err
}

// ListExpiring активные участники, у которых доступ закончится в течение within
// и которые ещё не получили напоминание.
func (s *Store) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]Member, error) {
	var members []Member
	err := s.db.WithContext(ctx).
		Where("status = ? AND notified_expiring = false AND expiry >= ? AND expiry < ?",
			MemberActive, now.UTC(), now.Add(within).UTC()).
		Find(&members).Error
	return members, err
}

func (s *Store) MarkExpiringNotified(ctx context.Context, chatID, groupChatID string) error {
	return s.db.WithContext(ctx).Model(&Member{}).
		Where("chat_id = ? AND group_chat_id = ?", chatID, groupChatID).
		Update("notified_expiring", true).Error
}

// MarkExpired переводит активного участника в expired. false, если он уже не активен.
func (s *Store) MarkExpired(ctx context.Context, chatID, groupChatID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Member{}).
		Where("chat_id = ? AND group_chat_id = ? AND status = ?", chatID, groupChatID, MemberActive).
		Update("status", MemberExpired)
	return res.RowsAffected > 0, res.Error
}

// UpdateExpiry продлевает доступ, активирует участника и пишет историю оплат
func (s *Store) UpdateExpiry(ctx context.Context, chatID, groupChatID string, newExpiry time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.updateExpiryTx(tx, chatID, groupChatID, newExpiry.UTC())
	})
}

func (s *Store) updateExpiryTx(tx *gorm.DB, chatID, groupChatID string, newExpiry time.Time) error {
	res := tx.Model(&Member{}).Where("chat_id = ? AND group_chat_id = ?", chatID, groupChatID).
		Updates(map[string]interface{}{
			"expiry":            newExpiry,
			"status":            MemberActive,
			"notified_expiring": false,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return tx.Create(&MemberPayment{
		ChatID:      chatID,
		GroupChatID: groupChatID,
		Timestamp:   s.now(),
		Expiry:      newExpiry,
	}).Error
}

// BuyMembership списывает стоимость с кошелька, начисляет прибыль группе
// и создаёт или продлевает членство. Всё в одной транзакции.
func (s *Store) BuyMembership(ctx context.Context, p Purchase) (*Member, error) {
	if p.BuyerChatID == "" || p.GroupChatID == "" {
		return nil, ErrMissingChatID
	}
	if !p.Cost.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var member Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var buyer User
		if err := tx.Where("chat_id = ?", p.BuyerChatID).First(&buyer).Error; err != nil {
			return notFound(err)
		}
		if _, err := s.adjustWalletTx(tx, Adjustment{
			ChatID:   p.BuyerChatID,
			Amount:   p.Cost.Neg(),
			Provider: "membership",
		}); err != nil {
			return err
		}

		if err := updateGroupProfitTx(tx, p.GroupChatID, p.Cost.Sub(p.Fee)); err != nil {
			return err
		}

		now := s.now()
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chat_id = ? AND group_chat_id = ?", p.BuyerChatID, p.GroupChatID).
			First(&member).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			member = Member{
				ChatID:      p.BuyerChatID,
				GroupChatID: p.GroupChatID,
				Expiry:      now,
				JoinedAt:    now,
				Status:      MemberActive,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		member.Expiry = ExtendExpiry(member.Expiry, now, p.Duration)
		member.Status = MemberActive
		member.NotifiedExpiring = false
		return s.updateExpiryTx(tx, p.BuyerChatID, p.GroupChatID, member.Expiry)
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ExtendExpiry продлевает от более поздней из дат: текущее окончание или now
func ExtendExpiry(current, now time.Time, d time.Duration) time.Time {
	base := now
	if current.After(now) {
		base = current
	}
	return base.Add(d).UTC()
}
