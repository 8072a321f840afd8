package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment provider webhook deliveries by outcome",
		},
		[]string{"provider", "outcome"},
	)

	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_credits_total",
			Help: "Wallet credit operations by provider and result",
		},
		[]string{"provider", "result"},
	)

	ChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_charges_total",
			Help: "Checkout links requested from payment providers",
		},
		[]string{"provider", "result"},
	)

	ExpiredMembersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memberships_expired_total",
			Help: "Memberships marked expired by the sweep",
		},
	)
)
