package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FlutterwaveOptions struct {
	SecretKey   string
	BaseURL     string
	RedirectURL string
}

type FlutterwaveGateway struct {
	opts   FlutterwaveOptions
	client *HTTPClient
}

func NewFlutterwaveGateway(opts FlutterwaveOptions) *FlutterwaveGateway {
	return &FlutterwaveGateway{
		opts:   opts,
		client: NewHTTPClient(opts.BaseURL).WithBearerToken(opts.SecretKey),
	}
}

func (g *FlutterwaveGateway) Provider() Provider { return Flutterwave }

type flutterwavePaymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	Meta           map[string]string `json:"meta"`
	Customer       map[string]string `json:"customer"`
	Customizations map[string]string `json:"customizations"`
}

type flutterwavePaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// TxRef уникальная ссылка на платёж: tg-<chat>-<uuid>
func TxRef(chatID string) string {
	return "tg-" + chatID + "-" + uuid.NewString()
}

func (g *FlutterwaveGateway) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	body := flutterwavePaymentRequest{
		TxRef:       TxRef(req.ChatID),
		Amount:      req.Amount.StringFixed(2),
		Currency:    "USD",
		RedirectURL: g.opts.RedirectURL,
		Meta:        map[string]string{"chat_id": req.ChatID},
		Customer:    map[string]string{"email": req.Email},
		Customizations: map[string]string{
			"title":       "Wallet deposit",
			"description": "Wallet top-up",
		},
	}

	var out flutterwavePaymentResponse
	resp, err := g.client.Post(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/v3/payments")
	if err != nil {
		return "", fmt.Errorf("flutterwave create payment: %w", err)
	}
	if !statusIn(resp, http.StatusOK) || out.Status != "success" {
		return "", fmt.Errorf("flutterwave create payment: %w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), out.Message)
	}
	if out.Data.Link == "" {
		return "", fmt.Errorf("flutterwave create payment: no link in response")
	}
	return out.Data.Link, nil
}

// FlutterwaveTransaction ответ /v3/transactions/{id}/verify
type FlutterwaveTransaction struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID       FlexString      `json:"id"`
		TxRef    string          `json:"tx_ref"`
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Meta     map[string]any  `json:"meta"`
	} `json:"data"`
}

// Successful и запрос проверки, и сама транзакция успешны
func (t *FlutterwaveTransaction) Successful() bool {
	return t.Status == "success" && t.Data.Status == "successful"
}

func (t *FlutterwaveTransaction) ChatID() string {
	return metaString(t.Data.Meta, "chat_id")
}

// metaString значение метаданных строкой: провайдеры присылают chat_id и строкой, и числом
func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return decimal.NewFromFloat(val).String()
	}
	return fmt.Sprint(v)
}

// VerifyTransaction повторно запрашивает транзакцию у Flutterwave.
// Любой ответ кроме 200 считается ErrNotFound.
func (g *FlutterwaveGateway) VerifyTransaction(ctx context.Context, id string) (*FlutterwaveTransaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	var out FlutterwaveTransaction
	resp, err := g.client.Get(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/v3/transactions/{id}/verify")
	if err != nil {
		return nil, fmt.Errorf("flutterwave verify %s: %w", id, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, ErrNotFound
	}
	return &out, nil
}

// FlutterwaveWebhook тело уведомления: поля либо в корне, либо в data
type FlutterwaveWebhook struct {
	Event  string     `json:"event"`
	ID     FlexString `json:"id"`
	Status string     `json:"status"`
	Data   *struct {
		ID     FlexString `json:"id"`
		Status string     `json:"status"`
	} `json:"data"`
}

func (w *FlutterwaveWebhook) TransactionID() string {
	if w.ID != "" {
		return string(w.ID)
	}
	if w.Data != nil {
		return string(w.Data.ID)
	}
	return ""
}

func (w *FlutterwaveWebhook) PaymentStatus() string {
	if w.Status != "" {
		return w.Status
	}
	if w.Data != nil {
		return w.Data.Status
	}
	return ""
}

// FlexString принимает в JSON и строку, и число
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}
