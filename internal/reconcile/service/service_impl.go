package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	"github.com/hydranet/aquabill/internal/events"
	obsmetrics "github.com/hydranet/aquabill/internal/observability/metrics"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
	"github.com/hydranet/aquabill/internal/reconcile/domain"
	"github.com/hydranet/aquabill/internal/status"
	"github.com/hydranet/aquabill/pkg/db"
	"github.com/hydranet/aquabill/pkg/db/option"
	"github.com/hydranet/aquabill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Policy     *config.PolicyHolder
	Adapters   map[string]paymentdomain.GatewayAdapter
	Bills      billdomain.Service
	Bus        *events.Bus
	Locker     *Locker             `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	policy     *config.PolicyHolder
	adapters   map[string]paymentdomain.GatewayAdapter
	bills      billdomain.Service
	bus        *events.Bus
	locker     *Locker
	markers    repository.Repository[domain.PendingPaymentMarker]
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reconcile.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		policy:     p.Policy,
		adapters:   p.Adapters,
		bills:      p.Bills,
		bus:        p.Bus,
		locker:     p.Locker,
		markers:    repository.ProvideStore[domain.PendingPaymentMarker](p.DB),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) BeginPending(ctx context.Context, marker domain.PendingPaymentMarker, supersede bool) (domain.PendingPaymentMarker, error) {
	marker.ID = s.genID.Generate()
	marker.CreatedAt = s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if supersede {
			if err := tx.Where("connection_id = ?", marker.ConnectionID).
				Delete(&domain.PendingPaymentMarker{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&marker).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.PendingPaymentMarker{}, domain.ErrPendingExists
		}
		return domain.PendingPaymentMarker{}, err
	}

	s.log.Info("pending payment marker created",
		zap.String("connection_id", marker.ConnectionID),
		zap.String("bill_id", marker.BillID),
		zap.String("provider", marker.Provider),
		zap.Int64("amount", marker.Amount),
	)
	return marker, nil
}

func (s *Service) AttachReference(ctx context.Context, marker domain.PendingPaymentMarker, externalReference string) (domain.PendingPaymentMarker, error) {
	marker.ExternalReference = externalReference

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted := tx.Where("id = ?", marker.ID).Delete(&domain.PendingPaymentMarker{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected == 0 {
			return domain.ErrMarkerGone
		}
		return tx.Create(&marker).Error
	})
	if err != nil {
		return domain.PendingPaymentMarker{}, err
	}
	return marker, nil
}

func (s *Service) Pending(ctx context.Context, connectionID string) (*domain.PendingPaymentMarker, error) {
	return s.markers.FindOne(ctx, &domain.PendingPaymentMarker{ConnectionID: connectionID})
}

func (s *Service) Reconcile(ctx context.Context, connectionID string) (domain.Result, error) {
	if s.locker != nil {
		key := "aquabill:reconcile:" + connectionID
		token, ok, err := s.locker.TryLock(ctx, key, lockTTL)
		if err != nil {
			s.log.Warn("reconcile lock unavailable, proceeding unlocked", zap.Error(err))
		} else if !ok {
			return domain.Result{Outcome: domain.OutcomeStillPending}, nil
		} else {
			defer func() {
				if err := s.locker.Release(ctx, key, token); err != nil {
					s.log.Warn("reconcile lock release failed", zap.Error(err))
				}
			}()
		}
	}

	marker, err := s.Pending(ctx, connectionID)
	if err != nil {
		return domain.Result{}, err
	}
	if marker == nil {
		// Already reconciled, or nothing was ever pending. Either way a
		// repeat call changes nothing.
		return domain.Result{Outcome: domain.OutcomeNone}, nil
	}

	now := s.clock.Now()
	retention := s.policy.Current().MarkerRetention
	if age := marker.Age(now); age > retention {
		return s.expire(ctx, *marker, age)
	}

	if marker.ExternalReference == "" {
		// The checkout has not been handed to the gateway yet; there is
		// nothing to poll. Expiry above still reaps the marker if the
		// submission never finishes.
		return domain.Result{Outcome: domain.OutcomeStillPending, Marker: marker}, nil
	}

	adapter, ok := s.adapters[marker.Provider]
	if !ok {
		return domain.Result{}, paymentdomain.ErrProviderNotFound
	}

	gwStatus, err := adapter.GetStatus(ctx, marker.ExternalReference)
	if err != nil {
		// The gateway being unreachable does not decide the payment; the
		// marker stays and a later pass retries.
		return domain.Result{Outcome: domain.OutcomeStillPending, Marker: marker}, err
	}

	switch gwStatus {
	case paymentdomain.GatewaySuccess:
		return s.Resolve(ctx, *marker)
	case paymentdomain.GatewayFailure:
		return s.fail(ctx, *marker)
	default:
		return domain.Result{Outcome: domain.OutcomeStillPending, Marker: marker}, nil
	}
}

func (s *Service) Resolve(ctx context.Context, marker domain.PendingPaymentMarker) (domain.Result, error) {
	deleted := s.db.WithContext(ctx).
		Where("id = ?", marker.ID).
		Delete(&domain.PendingPaymentMarker{})
	if deleted.Error != nil {
		return domain.Result{}, deleted.Error
	}
	if deleted.RowsAffected == 0 {
		// A concurrent pass already applied this settlement.
		return domain.Result{Outcome: domain.OutcomeResolved}, nil
	}

	bill, err := s.bills.ApplyPayment(ctx, marker.BillID, marker.Amount)
	if err != nil {
		// Restore the marker so a later pass can retry the settlement.
		if restoreErr := s.db.WithContext(ctx).Create(&marker).Error; restoreErr != nil {
			s.log.Error("failed to restore marker after apply failure",
				zap.String("connection_id", marker.ConnectionID),
				zap.Error(restoreErr),
			)
		}
		return domain.Result{}, err
	}

	s.finishAttempt(ctx, marker.AttemptID, paymentdomain.AttemptConfirmed)
	s.recordOutcome(ctx, marker.Provider, string(domain.OutcomeResolved))

	rendered := status.Pending
	switch bill.PaymentStatus {
	case billdomain.PaymentStatusPaid:
		rendered = status.Paid
	case billdomain.PaymentStatusPartial:
		rendered = status.Partial
	}
	s.bus.PublishPaymentResolved(events.PaymentResolved{
		BillID:       bill.ID,
		ConnectionID: marker.ConnectionID,
		NewBalance:   bill.Balance,
		Status:       rendered,
	})

	s.log.Info("payment reconciled",
		zap.String("connection_id", marker.ConnectionID),
		zap.String("bill_id", bill.ID),
		zap.Int64("amount", marker.Amount),
		zap.Int64("new_balance", bill.Balance),
	)
	return domain.Result{Outcome: domain.OutcomeResolved, Marker: &marker, NewBalance: bill.Balance}, nil
}

func (s *Service) fail(ctx context.Context, marker domain.PendingPaymentMarker) (domain.Result, error) {
	deleted := s.db.WithContext(ctx).
		Where("id = ?", marker.ID).
		Delete(&domain.PendingPaymentMarker{})
	if deleted.Error != nil {
		return domain.Result{}, deleted.Error
	}
	if deleted.RowsAffected == 0 {
		return domain.Result{Outcome: domain.OutcomeNone}, nil
	}

	s.finishAttempt(ctx, marker.AttemptID, paymentdomain.AttemptFailed)
	s.recordOutcome(ctx, marker.Provider, string(domain.OutcomeFailed))

	s.log.Info("payment failed at gateway",
		zap.String("connection_id", marker.ConnectionID),
		zap.String("bill_id", marker.BillID),
		zap.String("provider", marker.Provider),
	)
	return domain.Result{Outcome: domain.OutcomeFailed, Marker: &marker}, nil
}

func (s *Service) expire(ctx context.Context, marker domain.PendingPaymentMarker, age time.Duration) (domain.Result, error) {
	deleted := s.db.WithContext(ctx).
		Where("id = ?", marker.ID).
		Delete(&domain.PendingPaymentMarker{})
	if deleted.Error != nil {
		return domain.Result{}, deleted.Error
	}
	if deleted.RowsAffected == 0 {
		return domain.Result{Outcome: domain.OutcomeNone}, nil
	}

	s.finishAttempt(ctx, marker.AttemptID, paymentdomain.AttemptFailed)
	s.recordOutcome(ctx, marker.Provider, string(domain.OutcomeExpired))

	s.log.Warn("pending payment marker expired",
		zap.String("connection_id", marker.ConnectionID),
		zap.String("bill_id", marker.BillID),
		zap.Duration("age", age),
	)
	return domain.Result{Outcome: domain.OutcomeExpired, Marker: &marker},
		&domain.TimeoutError{ConnectionID: marker.ConnectionID, Age: age}
}

func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan)
	stale, err := s.markers.Find(ctx, &domain.PendingPaymentMarker{},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LTE, Value: cutoff}),
	)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, marker := range stale {
		result, err := s.Reconcile(ctx, marker.ConnectionID)
		if err != nil {
			if _, ok := domain.AsTimeout(err); !ok {
				s.log.Warn("sweep reconcile failed",
					zap.String("connection_id", marker.ConnectionID),
					zap.Error(err),
				)
				continue
			}
		}
		if result.Outcome != domain.OutcomeStillPending && result.Outcome != domain.OutcomeNone {
			settled++
		}
	}
	return settled, nil
}

func (s *Service) finishAttempt(ctx context.Context, attemptID snowflake.ID, st paymentdomain.AttemptStatus) {
	if attemptID == 0 {
		return
	}
	err := s.db.WithContext(ctx).
		Model(&paymentdomain.PaymentAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]any{"status": st, "updated_at": s.clock.Now()}).Error
	if err != nil {
		s.log.Warn("failed to update payment attempt", zap.Error(err))
	}
}

func (s *Service) recordOutcome(ctx context.Context, provider, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReconcileOutcome(ctx, provider, outcome)
	}
}
