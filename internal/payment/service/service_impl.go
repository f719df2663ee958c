package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	obsmetrics "github.com/hydranet/aquabill/internal/observability/metrics"
	"github.com/hydranet/aquabill/internal/payment/domain"
	"github.com/hydranet/aquabill/internal/payment/workflow"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"github.com/hydranet/aquabill/pkg/db/option"
	"github.com/hydranet/aquabill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Policy      *config.PolicyHolder
	Adapters    map[string]domain.GatewayAdapter
	Bills       billdomain.Service
	Connections connectiondomain.Service
	Reconcile   reconciledomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	policy      *config.PolicyHolder
	adapters    map[string]domain.GatewayAdapter
	bills       billdomain.Service
	connections connectiondomain.Service
	reconcile   reconciledomain.Service
	attempts    repository.Repository[domain.PaymentAttempt]
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		policy:      p.Policy,
		adapters:    p.Adapters,
		bills:       p.Bills,
		connections: p.Connections,
		reconcile:   p.Reconcile,
		attempts:    repository.ProvideStore[domain.PaymentAttempt](p.DB),
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) StartPayment(ctx context.Context, intent domain.PaymentIntent) (domain.StartPaymentResult, error) {
	// An unresolved checkout blocks new payments; reconcile it first so a
	// payment that actually settled never gets charged twice.
	if err := s.clearPending(ctx, intent); err != nil {
		return domain.StartPaymentResult{}, err
	}

	state, err := s.connections.GetState(ctx, intent.ConnectionID)
	if err != nil {
		return domain.StartPaymentResult{}, err
	}
	if state.PaymentBlocked() {
		return domain.StartPaymentResult{}, domain.ErrPaymentBlocked
	}

	bill, err := s.bills.GetByID(ctx, intent.BillID)
	if err != nil {
		if errors.Is(err, billdomain.ErrNotFound) {
			return domain.StartPaymentResult{}, domain.ErrNoBillFound
		}
		return domain.StartPaymentResult{}, err
	}
	if bill.ConnectionID != intent.ConnectionID {
		return domain.StartPaymentResult{}, domain.ErrNoBillFound
	}

	provider := strings.ToLower(strings.TrimSpace(intent.Provider))
	adapter, ok := s.adapters[provider]
	if !ok {
		return domain.StartPaymentResult{}, domain.ErrProviderNotFound
	}

	policy := s.policy.Current()
	wiz, err := workflow.Start(bill, policy.MinPartialAmount)
	if err != nil {
		return domain.StartPaymentResult{}, err
	}
	if err := wiz.Proceed(); err != nil {
		return domain.StartPaymentResult{}, err
	}
	if err := wiz.ChooseType(intent.Type, intent.Amount); err != nil {
		return domain.StartPaymentResult{}, err
	}
	if err := wiz.ChooseMethod(provider); err != nil {
		return domain.StartPaymentResult{}, err
	}

	now := s.clock.Now()
	attempt := domain.PaymentAttempt{
		ID:           s.genID.Generate(),
		ConnectionID: intent.ConnectionID,
		BillID:       bill.ID,
		Provider:     provider,
		Type:         wiz.Type(),
		Amount:       wiz.Amount(),
		Currency:     policy.Currency,
		Status:       domain.AttemptInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return domain.StartPaymentResult{}, err
	}

	// Reserve the single pending slot before money can move.
	marker, err := s.reconcile.BeginPending(ctx, reconciledomain.PendingPaymentMarker{
		ConnectionID: intent.ConnectionID,
		BillID:       bill.ID,
		AttemptID:    attempt.ID,
		Provider:     provider,
		Type:         wiz.Type(),
		Amount:       wiz.Amount(),
	}, intent.Supersede)
	if err != nil {
		s.markAttempt(ctx, attempt.ID, domain.AttemptFailed)
		return domain.StartPaymentResult{}, err
	}

	session, err := adapter.CreateCheckout(ctx, domain.CheckoutRequest{
		ReferenceID:  attempt.ID.String(),
		ConnectionID: intent.ConnectionID,
		BillID:       bill.ID,
		Amount:       wiz.Amount(),
		Currency:     policy.Currency,
		Description:  "Water bill " + bill.ID,
	})
	if err != nil {
		s.dropMarker(ctx, marker.ID)
		s.markAttempt(ctx, attempt.ID, domain.AttemptFailed)
		_ = wiz.Fail(err.Error())
		return domain.StartPaymentResult{}, err
	}

	marker, err = s.reconcile.AttachReference(ctx, marker, session.ExternalReference)
	if err != nil {
		// The slot was reclaimed (swept or superseded) while the gateway
		// call was in flight; this attempt lost the race.
		s.markAttempt(ctx, attempt.ID, domain.AttemptFailed)
		return domain.StartPaymentResult{}, err
	}

	attempt.ExternalReference = session.ExternalReference
	attempt.CheckoutURL = session.CheckoutURL
	attempt.Status = domain.AttemptPending
	attempt.UpdatedAt = s.clock.Now()
	if err := s.attempts.Save(ctx, &attempt); err != nil {
		return domain.StartPaymentResult{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentInitiated(ctx, provider, string(wiz.Type()))
	}

	switch session.Status {
	case domain.GatewaySuccess:
		// Synchronous settlement; no redirect round trip needed.
		result, err := s.reconcile.Resolve(ctx, marker)
		if err != nil {
			return domain.StartPaymentResult{}, err
		}
		_ = wiz.Confirm()
		attempt.Status = domain.AttemptConfirmed
		return domain.StartPaymentResult{
			Attempt:    attempt,
			Settled:    true,
			NewBalance: result.NewBalance,
		}, nil
	case domain.GatewayFailure:
		s.dropMarker(ctx, marker.ID)
		s.markAttempt(ctx, attempt.ID, domain.AttemptFailed)
		_ = wiz.Fail("checkout rejected")
		return domain.StartPaymentResult{}, &domain.GatewayError{
			Provider: provider,
			Reason:   "checkout rejected",
		}
	default:
		s.log.Info("payment initiated",
			zap.String("connection_id", intent.ConnectionID),
			zap.String("bill_id", bill.ID),
			zap.String("provider", provider),
			zap.Int64("amount", wiz.Amount()),
		)
		return domain.StartPaymentResult{
			Attempt:     attempt,
			CheckoutURL: session.CheckoutURL,
		}, nil
	}
}

func (s *Service) ListAttempts(ctx context.Context, connectionID string) ([]domain.PaymentAttempt, error) {
	rows, err := s.attempts.Find(ctx, &domain.PaymentAttempt{ConnectionID: connectionID},
		option.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	attempts := make([]domain.PaymentAttempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, *row)
	}
	return attempts, nil
}

// clearPending reconciles an existing marker before a new payment may start.
// A marker that is still genuinely pending keeps its slot unless the intent
// explicitly supersedes it.
func (s *Service) clearPending(ctx context.Context, intent domain.PaymentIntent) error {
	marker, err := s.reconcile.Pending(ctx, intent.ConnectionID)
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}

	result, err := s.reconcile.Reconcile(ctx, intent.ConnectionID)
	if err != nil {
		if _, ok := reconciledomain.AsTimeout(err); !ok {
			return err
		}
	}
	if result.Outcome == reconciledomain.OutcomeStillPending && !intent.Supersede {
		return reconciledomain.ErrPendingExists
	}
	return nil
}

func (s *Service) dropMarker(ctx context.Context, id snowflake.ID) {
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&reconciledomain.PendingPaymentMarker{}).Error; err != nil {
		s.log.Warn("failed to drop marker", zap.Error(err))
	}
}

func (s *Service) markAttempt(ctx context.Context, id snowflake.ID, st domain.AttemptStatus) {
	if err := s.db.WithContext(ctx).
		Model(&domain.PaymentAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": st, "updated_at": s.clock.Now()}).Error; err != nil {
		s.log.Warn("failed to update attempt", zap.Error(err))
	}
}
