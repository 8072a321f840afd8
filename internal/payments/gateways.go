package payments

import (
	"Membership-Telegram-bot/config"
)

// Gateways настроенные провайдеры; nil означает «выключен»
type Gateways struct {
	Coinbase    *CoinbaseGateway
	Flutterwave *FlutterwaveGateway
	PayPal      *PayPalGateway
}

// NewGateways включает провайдера, только если задан его ключ
func NewGateways(cfg *config.AppConfig) Gateways {
	var g Gateways
	if cfg.Coinbase.APIKey != "" {
		g.Coinbase = NewCoinbaseGateway(CoinbaseOptions{
			APIKey:        cfg.Coinbase.APIKey,
			WebhookSecret: cfg.Coinbase.WebhookSecret,
			BaseURL:       cfg.Coinbase.APIURL,
			RedirectURL:   cfg.SuccessRedirectURL,
			CancelURL:     cfg.CancelRedirectURL,
		})
	}
	if cfg.Flutterwave.SecretKey != "" {
		g.Flutterwave = NewFlutterwaveGateway(FlutterwaveOptions{
			SecretKey:   cfg.Flutterwave.SecretKey,
			BaseURL:     cfg.Flutterwave.APIURL,
			RedirectURL: cfg.SuccessRedirectURL,
		})
	}
	if cfg.PayPal.ClientID != "" && cfg.PayPal.ClientSecret != "" {
		// плательщик возвращается на /paypal-return, где заказ списывается
		returnURL := cfg.PublicURL("paypal-return")
		if returnURL == "" {
			returnURL = cfg.SuccessRedirectURL
		}
		g.PayPal = NewPayPalGateway(PayPalOptions{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			BaseURL:      cfg.PayPal.APIURL(),
			IPNURL:       cfg.PayPal.IPNURL(),
			ReturnURL:    returnURL,
			CancelURL:    cfg.CancelRedirectURL,
		})
	}
	return g
}

// All только включённые, без nil-указателей в интерфейсе
func (g Gateways) All() []Gateway {
	var out []Gateway
	if g.Coinbase != nil {
		out = append(out, g.Coinbase)
	}
	if g.Flutterwave != nil {
		out = append(out, g.Flutterwave)
	}
	if g.PayPal != nil {
		out = append(out, g.PayPal)
	}
	return out
}
