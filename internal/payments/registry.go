package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/metrics"
)

// Limits границы суммы пополнения
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Registry включённые провайдеры, выбор по Provider
type Registry struct {
	gateways map[Provider]Gateway
	limits   Limits
	log      *zap.Logger
}

func NewRegistry(limits Limits, log *zap.Logger, gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway), limits: limits, log: log}
	for _, g := range gateways {
		if g != nil {
			r.gateways[g.Provider()] = g
		}
	}
	return r
}

// Enabled настроенные провайдеры в порядке AllProviders
func (r *Registry) Enabled() []Provider {
	var out []Provider
	for _, p := range AllProviders() {
		if _, ok := r.gateways[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Contains границы включительно
func (l Limits) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(l.Min) && amount.LessThanOrEqual(l.Max)
}

func (r *Registry) Limits() Limits {
	return r.limits
}

// CreateCharge проверяет запрос и получает ссылку на оплату.
// Любая ошибка логируется здесь; вызывающему остаётся показать общее сообщение.
func (r *Registry) CreateCharge(ctx context.Context, p Provider, req ChargeRequest) (string, error) {
	g, ok := r.gateways[p]
	if !ok {
		r.log.Warn("charge requested for disabled provider", zap.Stringer("provider", p), zap.String("chat_id", req.ChatID))
		metrics.ChargesTotal.WithLabelValues(p.String(), "disabled").Inc()
		return "", ErrProviderDisabled
	}
	if err := p.Validate(req, r.limits); err != nil {
		metrics.ChargesTotal.WithLabelValues(p.String(), "invalid").Inc()
		return "", err
	}
	url, err := g.CreateCharge(ctx, req)
	if err != nil {
		r.log.Error("create charge failed",
			zap.Stringer("provider", p),
			zap.String("chat_id", req.ChatID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		metrics.ChargesTotal.WithLabelValues(p.String(), "error").Inc()
		return "", err
	}
	metrics.ChargesTotal.WithLabelValues(p.String(), "ok").Inc()
	return url, nil
}
