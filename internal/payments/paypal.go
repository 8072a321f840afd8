package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	IPNURL       string
	ReturnURL    string
	CancelURL    string
}

type PayPalGateway struct {
	opts   PayPalOptions
	client *HTTPClient
	ipn    *HTTPClient
}

func NewPayPalGateway(opts PayPalOptions) *PayPalGateway {
	return &PayPalGateway{
		opts:   opts,
		client: NewHTTPClient(opts.BaseURL),
		ipn:    NewHTTPClient(""),
	}
}

func (g *PayPalGateway) Provider() Provider { return PayPal }

type paypalToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken client_credentials; токен берётся на каждый платёж
func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	var out paypalToken
	resp, err := g.client.Post(ctx).
		SetBasicAuth(g.opts.ClientID, g.opts.ClientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || out.AccessToken == "" {
		return "", fmt.Errorf("paypal token: %w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return out.AccessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	CustomID    string          `json:"custom_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Amount      *paypalAmount   `json:"amount,omitempty"`
	Payments    *paypalPayments `json:"payments,omitempty"`
}

type paypalPayments struct {
	Captures []PayPalCapture `json:"captures"`
}

// PayPalCapture списание по заказу; его id приходит в IPN как txn_id
type PayPalCapture struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	CustomID string       `json:"custom_id"`
	Amount   paypalAmount `json:"amount"`
}

func (c *PayPalCapture) Value() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(c.Amount.Value))
	if err != nil {
		return decimal.Zero
	}
	return v
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext map[string]string    `json:"application_context,omitempty"`
}

type paypalLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

// PayPalOrder заказ Orders v2
type PayPalOrder struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Links         []paypalLink         `json:"links"`
}

// ApproveURL ссылка, по которой плательщик подтверждает заказ
func (o *PayPalOrder) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

// CompletedCapture первое завершённое списание или nil
func (o *PayPalOrder) CompletedCapture() *PayPalCapture {
	for _, u := range o.PurchaseUnits {
		if u.Payments == nil {
			continue
		}
		for i := range u.Payments.Captures {
			if u.Payments.Captures[i].Status == "COMPLETED" {
				return &u.Payments.Captures[i]
			}
		}
	}
	return nil
}

func (o *PayPalOrder) ChatID() string {
	for _, u := range o.PurchaseUnits {
		if u.CustomID != "" {
			return u.CustomID
		}
	}
	return ""
}

func (g *PayPalGateway) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			CustomID:    req.ChatID,
			Description: "Wallet deposit",
			Amount:      &paypalAmount{CurrencyCode: "USD", Value: req.Amount.StringFixed(2)},
		}},
		ApplicationContext: map[string]string{
			"return_url": g.opts.ReturnURL,
			"cancel_url": g.opts.CancelURL,
		},
	}

	var out PayPalOrder
	resp, err := g.client.Post(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("PayPal-Request-Id", uuid.NewString()).
		SetBody(body).
		SetResult(&out).
		Post("/v2/checkout/orders")
	if err != nil {
		return "", fmt.Errorf("paypal create order: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("paypal create order: %w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), resp.String())
	}
	link := out.ApproveURL()
	if link == "" {
		return "", fmt.Errorf("paypal create order %s: no approve link", out.ID)
	}
	return link, nil
}

// VerifyOrder запрашивает заказ; не 200 считается ErrNotFound
func (g *PayPalGateway) VerifyOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out PayPalOrder
	resp, err := g.client.Get(ctx).
		SetAuthToken(token).
		SetPathParam("id", orderID).
		SetResult(&out).
		Get("/v2/checkout/orders/{id}")
	if err != nil {
		return nil, fmt.Errorf("paypal get order %s: %w", orderID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, ErrNotFound
	}
	return &out, nil
}

// CaptureOrder списывает деньги по одобренному плательщиком заказу.
// Уже списанный заказ (422) перечитывается через VerifyOrder.
func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, ErrNotFound
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	var out PayPalOrder
	resp, err := g.client.Post(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("PayPal-Request-Id", "capture-"+orderID).
		SetPathParam("id", orderID).
		SetBody(map[string]string{}).
		SetResult(&out).
		Post("/v2/checkout/orders/{id}/capture")
	if err != nil {
		return nil, fmt.Errorf("paypal capture %s: %w", orderID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return &out, nil
	case http.StatusUnprocessableEntity:
		return g.VerifyOrder(ctx, orderID)
	case http.StatusNotFound:
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("paypal capture %s: %w: %d", orderID, ErrUnexpectedStatus, resp.StatusCode())
}

// VerifyIPN отправляет уведомление обратно в PayPal с cmd=_notify-validate.
// raw уходит байт в байт, как пришёл: порядок полей и кодировка должны совпасть.
// true только при ответе ровно "VERIFIED".
func (g *PayPalGateway) VerifyIPN(ctx context.Context, raw []byte) (bool, error) {
	payload := "cmd=_notify-validate"
	if len(raw) > 0 {
		payload += "&" + string(raw)
	}
	resp, err := g.ipn.Post(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(payload).
		Post(g.opts.IPNURL)
	if err != nil {
		return false, fmt.Errorf("paypal ipn validate: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return false, fmt.Errorf("paypal ipn validate: %w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return resp.String() == "VERIFIED", nil
}
