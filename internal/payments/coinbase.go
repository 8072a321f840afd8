package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

const coinbaseAPIVersion = "2018-03-22"

// ChargeConfirmed единственное событие Coinbase, которое зачисляет средства
const ChargeConfirmed = "charge:confirmed"

type CoinbaseOptions struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	RedirectURL   string
	CancelURL     string
}

type CoinbaseGateway struct {
	opts   CoinbaseOptions
	client *HTTPClient
}

func NewCoinbaseGateway(opts CoinbaseOptions) *CoinbaseGateway {
	return &CoinbaseGateway{
		opts: opts,
		client: NewHTTPClient(opts.BaseURL).
			WithHeader("X-CC-Api-Key", opts.APIKey).
			WithHeader("X-CC-Version", coinbaseAPIVersion),
	}
}

func (g *CoinbaseGateway) Provider() Provider { return Coinbase }

type coinbaseChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  *coinbaseMoney    `json:"local_price,omitempty"`
	Metadata    map[string]string `json:"metadata"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
}

type coinbaseMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type coinbaseChargeResponse struct {
	Data struct {
		Code      string `json:"code"`
		HostedURL string `json:"hosted_url"`
	} `json:"data"`
}

// CreateCharge создаёт charge: с фиксированной ценой или на любую сумму
func (g *CoinbaseGateway) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	body := coinbaseChargeRequest{
		Name:        "Wallet deposit",
		Description: "Wallet top-up for chat " + req.ChatID,
		PricingType: "no_price",
		Metadata:    map[string]string{"chat_id": req.ChatID},
		RedirectURL: g.opts.RedirectURL,
		CancelURL:   g.opts.CancelURL,
	}
	if !req.Amount.IsZero() {
		body.PricingType = "fixed_price"
		body.LocalPrice = &coinbaseMoney{Amount: req.Amount.StringFixed(2), Currency: "USD"}
	}

	var out coinbaseChargeResponse
	resp, err := g.client.Post(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/charges")
	if err != nil {
		return "", fmt.Errorf("coinbase create charge: %w", err)
	}
	if !statusIn(resp, http.StatusOK, http.StatusCreated) {
		return "", fmt.Errorf("coinbase create charge: %w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), resp.String())
	}
	if out.Data.HostedURL == "" {
		return "", fmt.Errorf("coinbase create charge: no hosted_url in response")
	}
	return out.Data.HostedURL, nil
}

// VerifySignature сверяет X-CC-Webhook-Signature с HMAC-SHA256 тела
func (g *CoinbaseGateway) VerifySignature(body []byte, signature string) bool {
	return VerifyHMACSHA256(g.opts.WebhookSecret, body, signature)
}

// VerifyHMACSHA256 hex-подпись, сравнение за постоянное время
func VerifyHMACSHA256(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// SignHMACSHA256 подпись в формате заголовка Coinbase
func SignHMACSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CoinbaseEvent тело вебхука Coinbase Commerce
type CoinbaseEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Code     string            `json:"code"`
		Metadata map[string]any `json:"metadata"`
		Pricing  struct {
			Local struct {
				Amount   decimal.Decimal `json:"amount"`
				Currency string          `json:"currency"`
			} `json:"local"`
		} `json:"pricing"`
	} `json:"data"`
}

func (e *CoinbaseEvent) ChatID() string {
	return metaString(e.Data.Metadata, "chat_id")
}

func (e *CoinbaseEvent) Amount() decimal.Decimal {
	return e.Data.Pricing.Local.Amount
}

// ParseCoinbaseEvent разбирает {"event": {...}}
func ParseCoinbaseEvent(body []byte) (*CoinbaseEvent, error) {
	var envelope struct {
		Event *CoinbaseEvent `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse coinbase event: %w", err)
	}
	if envelope.Event == nil {
		return nil, fmt.Errorf("parse coinbase event: missing event")
	}
	return envelope.Event, nil
}
