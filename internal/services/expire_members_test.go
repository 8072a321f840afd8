package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
)

var sweepNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSweepMarksOnlyPastGrace(t *testing.T) {
	store := &memMembers{members: []db.Member{
		{ChatID: "1", GroupChatID: "-100", Status: db.MemberActive, Expiry: sweepNow.Add(-48 * time.Hour)},
		{ChatID: "2", GroupChatID: "-100", Status: db.MemberActive, Expiry: sweepNow.Add(-time.Hour)},
		{ChatID: "3", GroupChatID: "-100", Status: db.MemberActive, Expiry: sweepNow.Add(time.Hour)},
		{ChatID: "4", GroupChatID: "-100", Status: db.MemberExpired, Expiry: sweepNow.Add(-72 * time.Hour)},
	}}
	bot := &captureSender{}
	s := NewExpirySweeper(store, bot, nil, 24*time.Hour, zap.NewNop())

	n, err := s.Sweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked = %d, want 1", n)
	}
	if !store.lastCutoff.Equal(sweepNow.Add(-24 * time.Hour)) {
		t.Errorf("cutoff = %v", store.lastCutoff)
	}
	want := map[string]db.MemberStatus{"1": db.MemberExpired, "2": db.MemberActive, "3": db.MemberActive, "4": db.MemberExpired}
	for chat, status := range want {
		if got := store.status(chat, "-100"); got != status {
			t.Errorf("member %s status = %s, want %s", chat, got, status)
		}
	}
	if bot.count() != 1 || bot.msgs[0].ChatID != 1 || !strings.Contains(bot.msgs[0].Text, "expired") {
		t.Fatalf("notices = %+v", bot.msgs)
	}

	// повторный обход ничего не меняет
	if n, _ := s.Sweep(context.Background(), sweepNow); n != 0 {
		t.Fatalf("second sweep marked %d", n)
	}
}

func TestSweepWithoutGraceUsesStrictBefore(t *testing.T) {
	store := &memMembers{members: []db.Member{
		{ChatID: "1", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow},
		{ChatID: "2", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(-time.Second)},
	}}
	s := NewExpirySweeper(store, &captureSender{}, nil, 0, zap.NewNop())
	n, err := s.Sweep(context.Background(), sweepNow)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if store.status("1", "g") != db.MemberActive {
		t.Fatal("member expiring exactly now must stay active")
	}
}

func TestSweepSendFailureStillMarks(t *testing.T) {
	store := &memMembers{members: []db.Member{
		{ChatID: "1", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(-time.Hour)},
	}}
	s := NewExpirySweeper(store, &captureSender{err: errors.New("forbidden")}, nil, 0, zap.NewNop())
	if n, err := s.Sweep(context.Background(), sweepNow); err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
}

func TestSweepMarkErrorContinues(t *testing.T) {
	store := &memMembers{
		members: []db.Member{{ChatID: "1", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(-time.Hour)}},
		markErr: errors.New("db down"),
	}
	bot := &captureSender{}
	s := NewExpirySweeper(store, bot, nil, 0, zap.NewNop())
	n, err := s.Sweep(context.Background(), sweepNow)
	if err != nil || n != 0 || bot.count() != 0 {
		t.Fatalf("Sweep = %d, %v, messages %d", n, err, bot.count())
	}
}

func TestNotifyExpiring(t *testing.T) {
	store := &memMembers{members: []db.Member{
		{ChatID: "1", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(48 * time.Hour)},
		{ChatID: "2", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(5 * 24 * time.Hour)},
		{ChatID: "3", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(time.Hour), NotifiedExpiring: true},
	}}
	bot := &captureSender{}
	s := NewExpirySweeper(store, bot, nil, 0, zap.NewNop())

	n, err := s.NotifyExpiring(context.Background(), sweepNow, ExpiringWindow)
	if err != nil || n != 1 {
		t.Fatalf("NotifyExpiring = %d, %v", n, err)
	}
	if bot.msgs[0].ChatID != 1 || !strings.Contains(bot.msgs[0].Text, "2024-06-03 12:00") {
		t.Errorf("notice = %+v", bot.msgs[0])
	}
	if n, _ := s.NotifyExpiring(context.Background(), sweepNow, ExpiringWindow); n != 0 {
		t.Fatalf("member notified twice")
	}
}

func TestNotifyExpiringRetriesUndelivered(t *testing.T) {
	store := &memMembers{members: []db.Member{
		{ChatID: "1", GroupChatID: "g", Status: db.MemberActive, Expiry: sweepNow.Add(time.Hour)},
	}}
	bot := &captureSender{err: errors.New("timeout")}
	s := NewExpirySweeper(store, bot, nil, 0, zap.NewNop())

	if n, _ := s.NotifyExpiring(context.Background(), sweepNow, ExpiringWindow); n != 0 {
		t.Fatalf("sent = %d", n)
	}
	if store.members[0].NotifiedExpiring {
		t.Fatal("undelivered notice must not set the flag")
	}
	bot.err = nil
	if n, _ := s.NotifyExpiring(context.Background(), sweepNow, ExpiringWindow); n != 1 {
		t.Fatalf("retry sent = %d", n)
	}
}

func TestMembershipsBuy(t *testing.T) {
	store := &memPurchases{groups: map[string]db.Group{
		"-100": {ChatID: "-100", AdminID: "1", Cost: decimal.NewFromInt(20)},
	}}
	fee := func(a decimal.Decimal) decimal.Decimal { return a.Mul(decimal.NewFromInt(15)).Div(decimal.NewFromInt(100)) }
	m := NewMemberships(store, fee, 30*24*time.Hour, zap.NewNop())

	member, group, err := m.Buy(context.Background(), "5", "-100")
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if group.ChatID != "-100" || member.GroupChatID != "-100" || member.ChatID != "5" {
		t.Errorf("member = %+v, group = %+v", member, group)
	}
	if !store.got.Cost.Equal(decimal.NewFromInt(20)) || !store.got.Fee.Equal(decimal.NewFromInt(3)) || store.got.Duration != 30*24*time.Hour {
		t.Errorf("purchase = %+v", store.got)
	}

	if _, _, err := m.Buy(context.Background(), "5", "-999"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("unknown group err = %v", err)
	}

	store.err = db.ErrInsufficientFunds
	if _, _, err := m.Buy(context.Background(), "5", "-100"); !errors.Is(err, db.ErrInsufficientFunds) {
		t.Errorf("insufficient funds err = %v", err)
	}
}
