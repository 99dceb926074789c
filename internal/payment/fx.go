package payment

import (
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/payment/adapters/stripe"
	"github.com/smallbiznis/htmlpdf/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	"github.com/smallbiznis/htmlpdf/internal/payment/repository"
	"github.com/smallbiznis/htmlpdf/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) paymentdomain.Verifier {
		return stripe.NewVerifier(cfg.Stripe.WebhookSecret)
	}),
	fx.Provide(func(cfg config.Config) paymentdomain.Gateway {
		gateway := stripe.NewGateway(cfg.Stripe.SecretKey)
		if gateway == nil {
			return nil
		}
		return gateway
	}),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)
