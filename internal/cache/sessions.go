package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// DepositTTL сколько живёт незавершённый /deposit
const DepositTTL = 15 * time.Minute

var ErrNoSession = errors.New("no pending deposit")

// Deposit сумма и email между /deposit и выбором способа оплаты
type Deposit struct {
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type DepositSessions interface {
	Save(ctx context.Context, chatID int64, d Deposit) error
	Load(ctx context.Context, chatID int64) (*Deposit, error)
	Delete(ctx context.Context, chatID int64) error
}

func NewDepositSessions(client *redis.Client, ttl time.Duration) DepositSessions {
	if ttl <= 0 {
		ttl = DepositTTL
	}
	if client == nil {
		return NewMemorySessions(ttl)
	}
	return &redisSessions{client: client, ttl: ttl}
}

type redisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func depositKey(chatID int64) string {
	return "deposit:" + strconv.FormatInt(chatID, 10)
}

func (s *redisSessions) Save(ctx context.Context, chatID int64, d Deposit) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deposit: %w", err)
	}
	return s.client.Set(ctx, depositKey(chatID), data, s.ttl).Err()
}

func (s *redisSessions) Load(ctx context.Context, chatID int64) (*Deposit, error) {
	data, err := s.client.Get(ctx, depositKey(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load deposit: %w", err)
	}
	var d Deposit
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal deposit: %w", err)
	}
	return &d, nil
}

func (s *redisSessions) Delete(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, depositKey(chatID)).Err()
}

type memoryEntry struct {
	deposit Deposit
	expires time.Time
}

type MemorySessions struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{entries: make(map[int64]memoryEntry), ttl: ttl, now: time.Now}
}

func (s *MemorySessions) Save(_ context.Context, chatID int64, d Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = memoryEntry{deposit: d, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessions) Load(_ context.Context, chatID int64) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[chatID]
	if !ok {
		return nil, ErrNoSession
	}
	if !e.expires.After(s.now()) {
		delete(s.entries, chatID)
		return nil, ErrNoSession
	}
	d := e.deposit
	return &d, nil
}

func (s *MemorySessions) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
	return nil
}
