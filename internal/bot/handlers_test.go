package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"Membership-Telegram-bot/internal/db"
)

func TestStartRegistersUser(t *testing.T) {
	env := newTestEnv(nil)
	env.bot.HandleUpdate(context.Background(), command(42, "/start"))
	if _, ok := env.store.users["42"]; !ok {
		t.Fatal("user not created")
	}
	if _, ok := env.api.last().ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup); !ok {
		t.Fatal("reply keyboard not attached")
	}
}

func TestBalanceShowsRecentTransactions(t *testing.T) {
	env := newTestEnv(nil)
	env.store.users["42"] = &db.User{ChatID: "42", Wallet: decimal.RequireFromString("17.5")}
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 7; i++ {
		env.store.txs["42"] = append(env.store.txs["42"], db.Transaction{
			Amount: decimal.NewFromInt(int64(i)), Provider: "coinbase", Timestamp: base.AddDate(0, 0, i),
		})
	}
	env.store.txs["42"] = append(env.store.txs["42"], db.Transaction{
		Amount: decimal.NewFromInt(-20), Provider: "membership", Timestamp: base.AddDate(0, 0, 8),
	})

	env.bot.HandleUpdate(context.Background(), command(42, "/balance"))
	text := env.api.last().Text
	if !strings.HasPrefix(text, "Wallet balance: $17.50") {
		t.Fatalf("reply = %q", text)
	}
	lines := strings.Split(text, "\n")
	// баланс, пустая строка, заголовок и пять последних записей
	if len(lines) != 8 {
		t.Fatalf("lines = %d: %q", len(lines), text)
	}
	if lines[3] != "2024-05-09 -$20.00 membership" {
		t.Errorf("newest line = %q", lines[3])
	}
	if lines[7] != "2024-05-05 +$4.00 coinbase" {
		t.Errorf("oldest shown line = %q", lines[7])
	}
}

func TestBalanceForUnknownUser(t *testing.T) {
	env := newTestEnv(nil)
	env.bot.HandleUpdate(context.Background(), command(42, "/balance"))
	if !strings.Contains(env.api.last().Text, "/deposit") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}
}

func TestJoinFlow(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.store.groups["-100"] = &db.Group{ChatID: "-100", Cost: decimal.NewFromInt(20),
		Settings: db.GroupSettings{WelcomeMessage: "Be nice"}}

	env.bot.HandleUpdate(ctx, command(42, "/join -100"))
	if got := buttons(env.api.last()); len(got) != 1 || got[0] != "join_-100" {
		t.Fatalf("buttons = %v", got)
	}
	if !strings.Contains(env.api.last().Text, "$20.00") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}

	env.bot.HandleUpdate(ctx, callback(42, "join_-100"))
	text := env.api.last().Text
	for _, want := range []string{"valid until 2024-07-01 00:00 UTC", "https://t.me/+abc", "Be nice"} {
		if !strings.Contains(text, want) {
			t.Errorf("reply %q missing %q", text, want)
		}
	}
}

func TestJoinErrors(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.store.groups["-100"] = &db.Group{ChatID: "-100", Cost: decimal.NewFromInt(20)}

	env.bot.HandleUpdate(ctx, command(42, "/join -999"))
	if env.api.last().Text != "Group not found." {
		t.Errorf("unknown group reply = %q", env.api.last().Text)
	}

	env.purchaser.err = db.ErrInsufficientFunds
	env.bot.HandleUpdate(ctx, callback(42, "join_-100"))
	if !strings.HasPrefix(env.api.last().Text, "Insufficient balance") {
		t.Errorf("reply = %q", env.api.last().Text)
	}

	// нет кошелька: хранилище отвечает ErrNotFound, но группа есть
	env2 := newTestEnv(nil)
	env2.store.groups["-100"] = &db.Group{ChatID: "-100", Cost: decimal.NewFromInt(20)}
	env2.purchaser.err = db.ErrNotFound
	env2.bot.HandleUpdate(ctx, callback(43, "join_-100"))
	if !strings.HasPrefix(env2.api.last().Text, "Insufficient balance") {
		t.Errorf("reply = %q", env2.api.last().Text)
	}
}

func TestMemberships(t *testing.T) {
	env := newTestEnv(nil)
	env.bot.HandleUpdate(context.Background(), command(42, "/memberships"))
	if !strings.HasPrefix(env.api.last().Text, "You have no active memberships") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}

	env = newTestEnv(nil)
	env.store.members["42"] = []db.Member{
		{ChatID: "42", GroupChatID: "-100", Status: db.MemberActive, Expiry: time.Date(2099, 8, 1, 10, 30, 0, 0, time.UTC)},
		{ChatID: "42", GroupChatID: "-200", Status: db.MemberActive, Expiry: time.Date(2024, 8, 1, 10, 30, 0, 0, time.UTC)},
	}
	env.bot.HandleUpdate(context.Background(), command(42, "/memberships"))
	text := env.api.last().Text
	if !strings.Contains(text, "-100: active until 2099-08-01 10:30 UTC") {
		t.Fatalf("reply = %q", text)
	}
	if !strings.Contains(text, "-200: expired 2024-08-01 10:30 UTC, renew with /join -200") {
		t.Fatalf("reply = %q", text)
	}
}

func TestNonCommandsIgnoredAndUnknownHinted(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.bot.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 42}, Text: "hello",
	}})
	env.bot.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 42},
	}})
	if len(env.api.sent) != 0 {
		t.Fatalf("replied to plain text: %v", env.api.sent)
	}
	env.bot.HandleUpdate(ctx, command(42, "/frobnicate"))
	if !strings.Contains(env.api.last().Text, "/help") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}
}

type adminStub struct{ handled []string }

func (a *adminStub) Handle(_ context.Context, msg *tgbotapi.Message) bool {
	if strings.HasPrefix(msg.Command(), "admin_") || msg.Command() == "addgroup" {
		a.handled = append(a.handled, msg.Command())
		return true
	}
	return false
}

func TestAdminCommandsDelegated(t *testing.T) {
	admin := &adminStub{}
	env := newTestEnv(admin)
	env.bot.HandleUpdate(context.Background(), command(42, "/addgroup -100 10"))
	if len(admin.handled) != 1 || len(env.api.sent) != 0 {
		t.Fatalf("handled = %v, sent = %d", admin.handled, len(env.api.sent))
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRateLimiter(1)
	r.now = func() time.Time { return now }

	if r.IsLimited(42, "/deposit") {
		t.Fatal("first call limited")
	}
	if !r.IsLimited(42, "/deposit") {
		t.Fatal("immediate repeat not limited")
	}
	if r.IsLimited(42, "/balance") {
		t.Fatal("limit must be per command")
	}
	if r.IsLimited(43, "/deposit") {
		t.Fatal("limit must be per user")
	}
	now = now.Add(5 * time.Second)
	if r.IsLimited(42, "/deposit") {
		t.Fatal("limit did not expire")
	}
	for i := 0; i < 3; i++ {
		if r.IsLimited(1, "/deposit") {
			t.Fatal("owner must not be limited")
		}
	}
}

func TestRateLimitedCommandReplies(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.bot.HandleUpdate(ctx, command(42, "/balance"))
	env.bot.HandleUpdate(ctx, command(42, "/balance"))
	if !strings.HasPrefix(env.api.last().Text, "Please slow down") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}
}

type panickyAdmin struct{}

func (panickyAdmin) Handle(context.Context, *tgbotapi.Message) bool { panic("nil group") }

type captureAlerter struct{ msgs []string }

func (a *captureAlerter) NotifyAdmin(msg string) { a.msgs = append(a.msgs, msg) }

func TestPanicInHandlerAlertsOwner(t *testing.T) {
	env := newTestEnv(panickyAdmin{})
	alert := &captureAlerter{}
	env.bot.alert = alert

	env.bot.HandleUpdate(context.Background(), command(42, "/mygroups"))
	if len(alert.msgs) != 1 || !strings.Contains(alert.msgs[0], "Panic while handling update 1: nil group") {
		t.Fatalf("alerts = %v", alert.msgs)
	}

	// следующий апдейт обрабатывается как обычно
	env.bot.admin = nil
	env.bot.HandleUpdate(context.Background(), command(43, "/help"))
	if !strings.HasPrefix(env.api.last().Text, "Commands:") {
		t.Fatalf("reply = %q", env.api.last().Text)
	}
}
