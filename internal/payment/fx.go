package payment

import (
	"strings"

	"github.com/hydranet/aquabill/internal/config"
	"github.com/hydranet/aquabill/internal/payment/adapters"
	"github.com/hydranet/aquabill/internal/payment/adapters/gcash"
	"github.com/hydranet/aquabill/internal/payment/adapters/maya"
	"github.com/hydranet/aquabill/internal/payment/domain"
	"github.com/hydranet/aquabill/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		newRegistry,
		newAdapters,
		service.NewService,
	),
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		gcash.NewFactory(),
		maya.NewFactory(),
	)
}

// newAdapters builds one adapter per configured provider. Providers without
// credentials are skipped, not fatal, so a deployment can run gcash-only.
func newAdapters(registry *adapters.Registry, cfg config.Config, log *zap.Logger) map[string]domain.GatewayAdapter {
	built := map[string]domain.GatewayAdapter{}
	for provider, gw := range cfg.Gateways {
		provider = strings.ToLower(strings.TrimSpace(provider))
		adapter, err := registry.NewAdapter(provider, domain.AdapterConfig{
			BaseURL: gw.BaseURL,
			APIKey:  gw.APIKey,
		})
		if err != nil {
			log.Warn("payment provider not configured",
				zap.String("provider", provider),
				zap.Error(err),
			)
			continue
		}
		built[provider] = adapter
	}
	return built
}
