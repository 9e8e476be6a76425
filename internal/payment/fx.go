package payment

import (
	"time"

	"github.com/groupcart/groupcart/internal/config"
	"github.com/groupcart/groupcart/internal/payment/gateway"
	"github.com/groupcart/groupcart/internal/payment/gateway/sandbox"
	"github.com/groupcart/groupcart/internal/payment/gateway/stripe"
	"github.com/groupcart/groupcart/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		NewRegistry,
		NewGateway,
		service.NewService,
	),
)

// NewRegistry wires every known gateway factory.
func NewRegistry() *gateway.Registry {
	return gateway.NewRegistry(
		stripe.NewFactory(),
		sandbox.NewFactory(),
	)
}

// NewGateway builds the configured provider's gateway.
func NewGateway(cfg config.Config, registry *gateway.Registry) (gateway.Gateway, error) {
	return registry.NewGateway(cfg.GatewayProvider, gateway.Config{
		APIKey:        cfg.GatewayAPIKey,
		WebhookSecret: cfg.GatewayWebhookSecret,
		ReturnURL:     cfg.GatewayReturnURL,
		Timeout:       time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
	})
}
