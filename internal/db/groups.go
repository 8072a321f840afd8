package db

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateGroup регистрирует группу для продажи доступа. Одна группа = одно членство.
func (s *Store) CreateGroup(ctx context.Context, chatID, adminID string, cost decimal.Decimal) (*Group, error) {
	if chatID == "" || adminID == "" {
		return nil, ErrMissingChatID
	}
	if !cost.IsPositive() {
		return nil, ErrInvalidAmount
	}
	group := Group{
		ChatID:    chatID,
		AdminID:   adminID,
		Cost:      cost,
		Profit:    decimal.Zero,
		CreatedAt: s.now(),
		Settings:  GroupSettings{AutoKick: true},
	}
	if err := s.db.WithContext(ctx).Create(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &group, nil
}

func (s *Store) GetGroup(ctx context.Context, chatID string) (*Group, error) {
	var group Group
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&group).Error; err != nil {
		return nil, notFound(err)
	}
	return &group, nil
}

func (s *Store) ListAdminGroups(ctx context.Context, adminID string) ([]Group, error) {
	var groups []Group
	err := s.db.WithContext(ctx).Where("admin_id = ?", adminID).Order("created_at asc").Find(&groups).Error
	return groups, err
}

// updateGroupProfitTx прибавляет amount к прибыли группы внутри транзакции покупки
func updateGroupProfitTx(tx *gorm.DB, chatID string, amount decimal.Decimal) error {
	res := tx.Model(&Group{}).Where("chat_id = ?", chatID).
		Update("profit", gorm.Expr("profit + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateGroupCost(ctx context.Context, chatID string, cost decimal.Decimal) error {
	if !cost.IsPositive() {
		return ErrInvalidAmount
	}
	return s.updateGroup(ctx, chatID, "cost", cost)
}

func (s *Store) UpdateGroupSettings(ctx context.Context, chatID string, settings GroupSettings) error {
	res := s.db.WithContext(ctx).Model(&Group{}).Where("chat_id = ?", chatID).
		Updates(map[string]interface{}{
			"settings_welcome_message": settings.WelcomeMessage,
			"settings_rules":           settings.Rules,
			"settings_auto_kick":       settings.AutoKick,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) updateGroup(ctx context.Context, chatID, column string, value interface{}) error {
	res := s.db.WithContext(ctx).Model(&Group{}).Where("chat_id = ?", chatID).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
