package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider платёжный провайдер. Набор закрыт: один Gateway на значение.
type Provider int

const (
	Coinbase Provider = iota + 1
	Flutterwave
	PayPal
)

var (
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrProviderDisabled = errors.New("payment provider is not configured")
	ErrAmountRequired   = errors.New("amount is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrAmountOutOfRange = errors.New("amount is out of allowed range")
	ErrNotFound         = errors.New("transaction not found at provider")
	ErrUnexpectedStatus = errors.New("unexpected provider response status")
)

// AllProviders в порядке показа пользователю
func AllProviders() []Provider {
	return []Provider{Coinbase, Flutterwave, PayPal}
}

func (p Provider) String() string {
	switch p {
	case Coinbase:
		return "coinbase"
	case Flutterwave:
		return "flutterwave"
	case PayPal:
		return "paypal"
	}
	return fmt.Sprintf("provider(%d)", int(p))
}

// Label текст кнопки выбора способа оплаты
func (p Provider) Label() string {
	switch p {
	case Coinbase:
		return "Crypto (Coinbase)"
	case Flutterwave:
		return "Card (Flutterwave)"
	case PayPal:
		return "PayPal"
	}
	return p.String()
}

// RequiresAmount крипто-платёж может быть на произвольную сумму
func (p Provider) RequiresAmount() bool {
	return p == Flutterwave || p == PayPal
}

func (p Provider) RequiresEmail() bool {
	return p == Flutterwave
}

func ParseProvider(s string) (Provider, error) {
	for _, p := range AllProviders() {
		if strings.EqualFold(strings.TrimSpace(s), p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// ChargeRequest нулевой Amount означает «сумму выбирает плательщик»
type ChargeRequest struct {
	ChatID string
	Amount decimal.Decimal
	Email  string
}

// Gateway создаёт ссылку на оплату у конкретного провайдера
type Gateway interface {
	Provider() Provider
	CreateCharge(ctx context.Context, req ChargeRequest) (string, error)
}

// Validate проверяет требования провайдера до любого HTTP-запроса
func (p Provider) Validate(req ChargeRequest, limits Limits) error {
	if req.ChatID == "" {
		return errors.New("chat_id is required")
	}
	if req.Amount.IsZero() {
		if p.RequiresAmount() {
			return ErrAmountRequired
		}
	} else if !limits.Contains(req.Amount) {
		return ErrAmountOutOfRange
	}
	if p.RequiresEmail() && strings.TrimSpace(req.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}
