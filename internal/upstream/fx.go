package upstream

import (
	"github.com/go-resty/resty/v2"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("upstream",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) billdomain.BillingBackend {
			client := resty.New().
				SetTimeout(cfg.UpstreamTimeout).
				SetRetryCount(2)
			return NewBillingClient(cfg.BillingBackendURL, client, log)
		},
		func(cfg config.Config, log *zap.Logger) connectiondomain.AccountBackend {
			client := resty.New().
				SetTimeout(cfg.UpstreamTimeout).
				SetRetryCount(2)
			return NewAccountClient(cfg.AccountBackendURL, client, log)
		},
	),
)
