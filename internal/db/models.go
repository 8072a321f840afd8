package db

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberExpired MemberStatus = "expired"
)

// User кошелёк пользователя, ключ chat_id
type User struct {
	ChatID       string          `gorm:"primaryKey;size:64"`
	Wallet       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt    time.Time       `gorm:"not null"`
	Transactions []Transaction   `gorm:"-"`
}

// Transaction запись журнала кошелька. Только добавляется, никогда не меняется.
type Transaction struct {
	ID         uint            `gorm:"primaryKey"`
	ChatID     string          `gorm:"size:64;not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Type       TransactionType `gorm:"size:16;not null"`
	Provider   string          `gorm:"size:32;uniqueIndex:idx_transactions_external"`
	ExternalID *string         `gorm:"size:128;uniqueIndex:idx_transactions_external"` // id платежа у провайдера
	Timestamp  time.Time       `gorm:"not null"`
}

type Group struct {
	ChatID    string          `gorm:"primaryKey;size:64"`
	AdminID   string          `gorm:"size:64;not null;index"`
	Cost      decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Profit    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	Settings  GroupSettings   `gorm:"embedded;embeddedPrefix:settings_"`
}

type GroupSettings struct {
	WelcomeMessage string `gorm:"type:text"`
	Rules          string `gorm:"type:text"`
	AutoKick       bool   `gorm:"not null"`
}

// Member доступ пользователя к группе, ключ (chat_id, group_chat_id)
type Member struct {
	ChatID           string          `gorm:"primaryKey;size:64"`
	GroupChatID      string          `gorm:"primaryKey;size:64;index"`
	Expiry           time.Time       `gorm:"not null;index"`
	JoinedAt         time.Time       `gorm:"not null"`
	Status           MemberStatus    `gorm:"size:16;not null;index"`
	NotifiedExpiring bool            `gorm:"not null"` // уведомление о скором окончании
	PaymentHistory   []MemberPayment `gorm:"-"`
}

type MemberPayment struct {
	ID          uint      `gorm:"primaryKey"`
	ChatID      string    `gorm:"size:64;not null;index:idx_member_payments_member"`
	GroupChatID string    `gorm:"size:64;not null;index:idx_member_payments_member"`
	Timestamp   time.Time `gorm:"not null"`
	Expiry      time.Time `gorm:"not null"`
}

// IsExpired то же условие, что и в ListExpired
func (m Member) IsExpired(now time.Time) bool {
	return m.Status == MemberActive && m.Expiry.Before(now)
}
