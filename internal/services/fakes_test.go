package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"Membership-Telegram-bot/internal/db"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
	err  error
}

func (s *captureSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.msgs = append(s.msgs, m)
	}
	return tgbotapi.Message{}, nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type captureAlerter struct{ alerts []string }

func (a *captureAlerter) NotifyAdmin(msg string) { a.alerts = append(a.alerts, msg) }

// memWallets кошельки в памяти с той же уникальностью (provider, external_id), что и в БД
type memWallets struct {
	mu      sync.Mutex
	wallets map[string]decimal.Decimal
	ledger  map[string][]db.Transaction
	seen    map[string]bool
	calls   int
	err     error
}

func newMemWallets() *memWallets {
	return &memWallets{
		wallets: make(map[string]decimal.Decimal),
		ledger:  make(map[string][]db.Transaction),
		seen:    make(map[string]bool),
	}
}

func (w *memWallets) AdjustWallet(_ context.Context, adj db.Adjustment) (*db.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	if adj.ChatID == "" {
		return nil, db.ErrMissingChatID
	}
	key := adj.Provider + "/" + adj.ExternalID
	if adj.ExternalID != "" && w.seen[key] {
		return nil, db.ErrDuplicateTransaction
	}
	w.seen[key] = true
	w.wallets[adj.ChatID] = w.wallets[adj.ChatID].Add(adj.Amount)
	w.ledger[adj.ChatID] = append(w.ledger[adj.ChatID], db.Transaction{
		ChatID: adj.ChatID, Amount: adj.Amount, Type: db.TransactionCredit, Provider: adj.Provider,
	})
	return &db.User{ChatID: adj.ChatID, Wallet: w.wallets[adj.ChatID]}, nil
}

func (w *memWallets) balance(chatID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallets[chatID]
}

func (w *memWallets) txCount(chatID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ledger[chatID])
}

type memMembers struct {
	members    []db.Member
	lastCutoff time.Time
	markErr    error
}

func (m *memMembers) ListExpired(_ context.Context, now time.Time) ([]db.Member, error) {
	m.lastCutoff = now
	var out []db.Member
	for _, mem := range m.members {
		if mem.IsExpired(now) {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembers) MarkExpired(_ context.Context, chatID, groupChatID string) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	for i := range m.members {
		if m.members[i].ChatID == chatID && m.members[i].GroupChatID == groupChatID && m.members[i].Status == db.MemberActive {
			m.members[i].Status = db.MemberExpired
			return true, nil
		}
	}
	return false, nil
}

func (m *memMembers) ListExpiring(_ context.Context, now time.Time, within time.Duration) ([]db.Member, error) {
	var out []db.Member
	for _, mem := range m.members {
		if mem.Status == db.MemberActive && !mem.NotifiedExpiring &&
			!mem.Expiry.Before(now) && mem.Expiry.Before(now.Add(within)) {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memMembers) MarkExpiringNotified(_ context.Context, chatID, groupChatID string) error {
	for i := range m.members {
		if m.members[i].ChatID == chatID && m.members[i].GroupChatID == groupChatID {
			m.members[i].NotifiedExpiring = true
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memMembers) status(chatID, groupChatID string) db.MemberStatus {
	for _, mem := range m.members {
		if mem.ChatID == chatID && mem.GroupChatID == groupChatID {
			return mem.Status
		}
	}
	return ""
}

type memPurchases struct {
	groups map[string]db.Group
	got    db.Purchase
	err    error
}

func (p *memPurchases) GetGroup(_ context.Context, chatID string) (*db.Group, error) {
	g, ok := p.groups[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &g, nil
}

func (p *memPurchases) BuyMembership(_ context.Context, purchase db.Purchase) (*db.Member, error) {
	p.got = purchase
	if p.err != nil {
		return nil, p.err
	}
	now := time.Now().UTC()
	return &db.Member{
		ChatID:      purchase.BuyerChatID,
		GroupChatID: purchase.GroupChatID,
		Expiry:      db.ExtendExpiry(time.Time{}, now, purchase.Duration),
		Status:      db.MemberActive,
	}, nil
}

var errTransport = errors.New("connection refused")
