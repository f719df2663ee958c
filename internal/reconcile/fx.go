package reconcile

import (
	"github.com/hydranet/aquabill/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(
		service.NewLocker,
		service.NewService,
	),
)
