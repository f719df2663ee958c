package connection

import (
	"github.com/hydranet/aquabill/internal/connection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("connection.service",
	fx.Provide(service.NewService),
)
