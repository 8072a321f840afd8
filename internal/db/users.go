package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Adjustment изменение кошелька: amount > 0 пополнение, amount < 0 списание
type Adjustment struct {
	ChatID     string
	Amount     decimal.Decimal
	Provider   string
	ExternalID string
}

// CreateUser регистрирует пользователя с нулевым балансом, повторный вызов ничего не меняет
func (s *Store) CreateUser(ctx context.Context, chatID string) (*User, error) {
	if chatID == "" {
		return nil, ErrMissingChatID
	}
	user := User{ChatID: chatID, Wallet: decimal.Zero, CreatedAt: s.now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, chatID)
}

func (s *Store) GetUser(ctx context.Context, chatID string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListTransactions журнал кошелька в порядке добавления
func (s *Store) ListTransactions(ctx context.Context, chatID string) ([]Transaction, error) {
	var txs []Transaction
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id asc").Find(&txs).Error
	return txs, err
}

// AdjustWallet в одной транзакции БД создаёт пользователя при необходимости,
// меняет баланс и добавляет запись в журнал.
func (s *Store) AdjustWallet(ctx context.Context, adj Adjustment) (*User, error) {
	var user *User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.adjustWalletTx(tx, adj)
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) adjustWalletTx(tx *gorm.DB, adj Adjustment) (*User, error) {
	if adj.ChatID == "" {
		return nil, ErrMissingChatID
	}
	if adj.Amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	now := s.now()

	if adj.ExternalID != "" {
		var seen int64
		if err := tx.Model(&Transaction{}).
			Where("provider = ? AND external_id = ?", adj.Provider, adj.ExternalID).
			Count(&seen).Error; err != nil {
			return nil, err
		}
		if seen > 0 {
			return nil, ErrDuplicateTransaction
		}
	}

	// upsert: первый платёж создаёт пользователя
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&User{ChatID: adj.ChatID, Wallet: decimal.Zero, CreatedAt: now}).Error; err != nil {
		return nil, err
	}
	var user User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chat_id = ?", adj.ChatID).First(&user).Error; err != nil {
		return nil, err
	}
	if adj.Amount.IsNegative() && user.Wallet.Add(adj.Amount).IsNegative() {
		return nil, ErrInsufficientFunds
	}

	if err := tx.Model(&User{}).Where("chat_id = ?", adj.ChatID).
		Update("wallet", gorm.Expr("wallet + ?", adj.Amount)).Error; err != nil {
		return nil, err
	}
	user.Wallet = user.Wallet.Add(adj.Amount)

	entry := Transaction{
		ChatID:    adj.ChatID,
		Amount:    adj.Amount,
		Type:      TransactionCredit,
		Provider:  adj.Provider,
		Timestamp: now,
	}
	if adj.Amount.IsNegative() {
		entry.Type = TransactionDebit
	}
	if adj.ExternalID != "" {
		ext := adj.ExternalID
		entry.ExternalID = &ext
	}
	if err := tx.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return &user, nil
}
