package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
)

type PurchaseStore interface {
	GetGroup(ctx context.Context, chatID string) (*db.Group, error)
	BuyMembership(ctx context.Context, p db.Purchase) (*db.Member, error)
}

// FeeFunc комиссия платформы с суммы (config.AppConfig.PlatformFee)
type FeeFunc func(amount decimal.Decimal) decimal.Decimal

// Memberships покупка доступа к группе с кошелька
type Memberships struct {
	store    PurchaseStore
	fee      FeeFunc
	duration time.Duration
	log      *zap.Logger
}

func NewMemberships(store PurchaseStore, fee FeeFunc, duration time.Duration, log *zap.Logger) *Memberships {
	return &Memberships{store: store, fee: fee, duration: duration, log: log}
}

// Buy списывает стоимость группы и продлевает доступ на duration
// от более поздней из дат: сейчас или текущее окончание.
func (m *Memberships) Buy(ctx context.Context, buyerChatID, groupChatID string) (*db.Member, *db.Group, error) {
	group, err := m.store.GetGroup(ctx, groupChatID)
	if err != nil {
		return nil, nil, fmt.Errorf("group %s: %w", groupChatID, err)
	}
	fee := decimal.Zero
	if m.fee != nil {
		fee = m.fee(group.Cost)
	}
	member, err := m.store.BuyMembership(ctx, db.Purchase{
		BuyerChatID: buyerChatID,
		GroupChatID: groupChatID,
		Cost:        group.Cost,
		Fee:         fee,
		Duration:    m.duration,
	})
	if err != nil {
		return nil, group, err
	}
	m.log.Info("membership purchased",
		zap.String("chat_id", buyerChatID),
		zap.String("group_chat_id", groupChatID),
		zap.String("cost", group.Cost.StringFixed(2)),
		zap.String("fee", fee.StringFixed(2)),
		zap.Time("expiry", member.Expiry))
	return member, group, nil
}
