package migration

import (
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if conn.Dialector.Name() != "postgres" {
			// Non-postgres deployments (sqlite for local runs) lean on gorm.
			return conn.AutoMigrate(
				&billdomain.Bill{},
				&connectiondomain.Connection{},
				&reconciledomain.PendingPaymentMarker{},
				&paymentdomain.PaymentAttempt{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
