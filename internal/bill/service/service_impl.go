package service

import (
	"context"

	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/clock"
	obsmetrics "github.com/hydranet/aquabill/internal/observability/metrics"
	"github.com/hydranet/aquabill/pkg/db/option"
	"github.com/hydranet/aquabill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Backend    billdomain.BillingBackend
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	backend    billdomain.BillingBackend
	repo       repository.Repository[billdomain.Bill]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) billdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bill.service"),
		clock:      p.Clock,
		backend:    p.Backend,
		repo:       repository.ProvideStore[billdomain.Bill](p.DB),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Sync(ctx context.Context, connectionID string) (billdomain.SyncResult, error) {
	raws, err := s.backend.FetchBills(ctx, connectionID)
	if err != nil {
		return billdomain.SyncResult{}, err
	}

	now := s.clock.Now()
	result := billdomain.SyncResult{}
	for _, raw := range raws {
		normalized, err := billdomain.Normalize(raw, now)
		if err != nil {
			result.Skipped++
			if malformed, ok := billdomain.AsMalformed(err); ok {
				s.log.Warn("skipping malformed bill",
					zap.String("bill_id", malformed.BillID),
					zap.String("field", malformed.Field),
					zap.String("reason", malformed.Reason),
				)
				s.obsMetrics.RecordBillMalformed(ctx, malformed.Reason)
				continue
			}
			s.log.Warn("skipping bill", zap.Error(err))
			continue
		}

		if err := s.upsert(ctx, &normalized); err != nil {
			return result, err
		}
		result.Synced++
		s.obsMetrics.RecordBillNormalized(ctx)
	}
	return result, nil
}

// upsert keeps locally applied payments: a stale upstream copy must not roll
// back an amount the engine has already reconciled.
func (s *Service) upsert(ctx context.Context, incoming *billdomain.Bill) error {
	existing, err := s.repo.FindOne(ctx, &billdomain.Bill{ID: incoming.ID})
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.AmountPaid > incoming.AmountPaid {
			return nil
		}
		incoming.CreatedAt = existing.CreatedAt
		incoming.SettledAt = existing.SettledAt
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(incoming).Error
}

func (s *Service) ListByConnection(ctx context.Context, connectionID string) ([]billdomain.Bill, error) {
	rows, err := s.repo.Find(ctx, &billdomain.Bill{ConnectionID: connectionID},
		option.OrderBy("due_date ASC"),
	)
	if err != nil {
		return nil, err
	}
	bills := make([]billdomain.Bill, 0, len(rows))
	for _, row := range rows {
		if row.ArchivedAt != nil {
			continue
		}
		bills = append(bills, *row)
	}
	return bills, nil
}

func (s *Service) GetByID(ctx context.Context, billID string) (billdomain.Bill, error) {
	row, err := s.repo.FindOne(ctx, &billdomain.Bill{ID: billID})
	if err != nil {
		return billdomain.Bill{}, err
	}
	if row == nil {
		return billdomain.Bill{}, billdomain.ErrNotFound
	}
	return *row, nil
}

func (s *Service) ApplyPayment(ctx context.Context, billID string, amount int64) (billdomain.Bill, error) {
	var updated billdomain.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stmt := tx
		// sqlite has no row locks; the transaction itself serializes there.
		if tx.Dialector.Name() != "sqlite" {
			stmt = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row billdomain.Bill
		if err := stmt.Where("id = ?", billID).First(&row).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return billdomain.ErrNotFound
			}
			return err
		}

		if err := row.ApplyPayment(amount, s.clock.Now()); err != nil {
			return err
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		return billdomain.Bill{}, err
	}

	s.log.Info("payment applied",
		zap.String("bill_id", updated.ID),
		zap.String("connection_id", updated.ConnectionID),
		zap.Int64("amount", amount),
		zap.Int64("balance", updated.Balance),
		zap.String("payment_status", string(updated.PaymentStatus)),
	)
	return updated, nil
}
