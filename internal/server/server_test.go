package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/cache"
	"Membership-Telegram-bot/internal/payments"
	"Membership-Telegram-bot/internal/services"
)

type updateRecorder struct{ ids []int }

func (r *updateRecorder) handle(_ context.Context, u tgbotapi.Update) {
	r.ids = append(r.ids, u.UpdateID)
}

func newTestServer(rec *updateRecorder, webhooks *services.WebhookHandler) http.Handler {
	return New(Options{
		BotPath:  "tgapi/v2",
		OnUpdate: rec.handle,
		Deduper:  cache.NewMemoryDeduper(time.Minute),
		Webhooks: webhooks,
		Log:      zap.NewNop(),
	})
}

func do(h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(&updateRecorder{}, nil)
	rec := do(h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	h := newTestServer(&updateRecorder{}, nil)
	rec := do(h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestTelegramWebhook(t *testing.T) {
	tests := []struct {
		desc        string
		contentType string
		body        string
		wantCode    int
		wantBody    string
		wantIDs     int
	}{
		{"json update", "application/json", `{"update_id":1}`, http.StatusOK, "ok", 1},
		{"wrong content type", "text/plain", `{"update_id":2}`, http.StatusForbidden, "error", 0},
		{"missing content type", "", `{"update_id":3}`, http.StatusForbidden, "error", 0},
	}
	for _, tt := range tests {
		rec := &updateRecorder{}
		h := newTestServer(rec, nil)
		resp := do(h, http.MethodPost, "/tgapi/v2", tt.contentType, tt.body)
		if resp.Code != tt.wantCode || resp.Body.String() != tt.wantBody {
			t.Errorf("%s: response = %d %q", tt.desc, resp.Code, resp.Body.String())
		}
		if len(rec.ids) != tt.wantIDs {
			t.Errorf("%s: handled %d updates, want %d", tt.desc, len(rec.ids), tt.wantIDs)
		}
	}
}

func TestTelegramWebhookDropsDuplicates(t *testing.T) {
	rec := &updateRecorder{}
	h := newTestServer(rec, nil)
	for i := 0; i < 3; i++ {
		resp := do(h, http.MethodPost, "/tgapi/v2", "application/json", `{"update_id":42}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("delivery %d: code %d", i, resp.Code)
		}
	}
	do(h, http.MethodPost, "/tgapi/v2", "application/json", `{"update_id":43}`)
	if len(rec.ids) != 2 || rec.ids[0] != 42 || rec.ids[1] != 43 {
		t.Fatalf("handled = %v, want [42 43]", rec.ids)
	}
}

func TestPollingModeHasNoBotRoute(t *testing.T) {
	h := New(Options{Log: zap.NewNop()})
	if rec := do(h, http.MethodPost, "/tgapi/v2", "application/json", `{"update_id":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
}

func TestProviderRoutesFollowConfiguration(t *testing.T) {
	webhooks := services.NewWebhookHandler(nil, services.WebhookVerifiers{
		Coinbase: payments.NewCoinbaseGateway(payments.CoinbaseOptions{WebhookSecret: "s"}),
	}, nil, zap.NewNop())
	h := newTestServer(&updateRecorder{}, webhooks)

	// подпись не сходится, но маршрут есть
	if rec := do(h, http.MethodPost, "/coinbase-webhook", "application/json", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("coinbase code = %d, want 400", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/paypal-webhook", "application/x-www-form-urlencoded", "a=b"); rec.Code != http.StatusNotFound {
		t.Errorf("paypal code = %d, want 404 when disabled", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/paypal-return?token=O-1", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("paypal return code = %d, want 404 when disabled", rec.Code)
	}
}

type captureAlerter struct{ msgs []string }

func (a *captureAlerter) NotifyAdmin(msg string) { a.msgs = append(a.msgs, msg) }

func TestHandlerPanicAlertsOwner(t *testing.T) {
	alert := &captureAlerter{}
	h := New(Options{
		BotPath: "tgapi/v2",
		OnUpdate: func(context.Context, tgbotapi.Update) {
			panic("boom")
		},
		Deduper: cache.NewMemoryDeduper(time.Minute),
		Alert:   alert,
		Log:     zap.NewNop(),
	})

	resp := do(h, http.MethodPost, "/tgapi/v2", "application/json", `{"update_id":9}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", resp.Code)
	}
	if len(alert.msgs) != 1 || !strings.Contains(alert.msgs[0], "boom") {
		t.Fatalf("alerts = %v", alert.msgs)
	}
}
