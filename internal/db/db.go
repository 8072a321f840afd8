package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrMissingChatID        = errors.New("chat_id is required")
	ErrInvalidAmount        = errors.New("amount must be non-zero")
	ErrInsufficientFunds    = errors.New("insufficient wallet balance")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrAlreadyExists        = errors.New("record already exists")
)

// Open подключается к Postgres и мигрирует схему
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(&User{}, &Transaction{}, &Group{}, &Member{}, &MemberPayment{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Store типизированный доступ к users, groups и members
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Stats сводка для владельца бота
type Stats struct {
	Users         int64
	Groups        int64
	ActiveMembers int64
	Credited      decimal.Decimal
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	q := s.db.WithContext(ctx)
	if err := q.Model(&User{}).Count(&st.Users).Error; err != nil {
		return st, err
	}
	if err := q.Model(&Group{}).Count(&st.Groups).Error; err != nil {
		return st, err
	}
	if err := q.Model(&Member{}).Where("status = ?", MemberActive).Count(&st.ActiveMembers).Error; err != nil {
		return st, err
	}
	err := q.Model(&Transaction{}).Where("type = ?", TransactionCredit).
		Select("coalesce(sum(amount), 0)").Row().Scan(&st.Credited)
	return st, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
