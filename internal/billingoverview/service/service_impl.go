package service

import (
	"context"
	"sync"
	"time"

	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"github.com/hydranet/aquabill/internal/billingoverview/domain"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"github.com/hydranet/aquabill/internal/events"
	"github.com/hydranet/aquabill/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const cacheTTL = 30 * time.Second

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Bills       billdomain.Service
	Connections connectiondomain.Service
	Policy      *config.PolicyHolder
	Bus         *events.Bus
}

type cacheEntry struct {
	summary domain.ConnectionSummary
	expires time.Time
}

type overviewService struct {
	log         *zap.Logger
	clock       clock.Clock
	bills       billdomain.Service
	connections connectiondomain.Service
	policy      *config.PolicyHolder

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService(p Params) domain.Service {
	s := &overviewService{
		log:         p.Log.Named("billingoverview.service"),
		clock:       p.Clock,
		bills:       p.Bills,
		connections: p.Connections,
		policy:      p.Policy,
		cache:       make(map[string]cacheEntry),
	}
	p.Bus.SubscribePaymentResolved(func(ev events.PaymentResolved) {
		s.invalidate(ev.ConnectionID)
	})
	return s
}

func (s *overviewService) GetBillingSummary(ctx context.Context, connectionID string) (domain.ConnectionSummary, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if entry, ok := s.cache[connectionID]; ok && now.Before(entry.expires) {
		s.mu.Unlock()
		return entry.summary, nil
	}
	s.mu.Unlock()

	// A stale upstream only degrades freshness; the local mirror still
	// serves the summary.
	if _, err := s.bills.Sync(ctx, connectionID); err != nil {
		s.log.Warn("bill sync failed, serving mirror",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
	}

	bills, err := s.bills.ListByConnection(ctx, connectionID)
	if err != nil {
		return domain.ConnectionSummary{}, err
	}

	state, err := s.connections.GetState(ctx, connectionID)
	if err != nil {
		s.log.Warn("connection state unavailable, assuming active",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
		state = connectiondomain.StateActive
	}

	summary := s.build(connectionID, state, bills, now)

	s.mu.Lock()
	s.cache[connectionID] = cacheEntry{summary: summary, expires: now.Add(cacheTTL)}
	s.mu.Unlock()

	return summary, nil
}

func (s *overviewService) build(connectionID string, state connectiondomain.LifecycleState, bills []billdomain.Bill, now time.Time) domain.ConnectionSummary {
	agg := domain.Summarize(bills, now)
	policy := s.policy.Current()

	views := make([]domain.BillView, 0, len(bills))
	for _, b := range bills {
		ownDays := domain.DaysBetween(now, b.DueDate)
		overdueDays := ownDays
		// With several open bills the oldest one drives urgency for all.
		if agg.UnpaidCount > 1 && b.Unpaid() {
			overdueDays = agg.EarliestOverdueDays
		}
		views = append(views, domain.BillView{
			Bill: b,
			Status: status.Classify(status.Input{
				PaymentStatus:       b.PaymentStatus,
				ConnectionState:     state,
				EarliestOverdueDays: overdueDays,
				DaysUntilDue:        -ownDays,
				DueSoonDays:         policy.DueSoonDays,
			}),
		})
	}

	return domain.ConnectionSummary{
		ConnectionID: connectionID,
		State:        state,
		Bills:        views,
		Summary:      agg,
	}
}

func (s *overviewService) invalidate(connectionID string) {
	s.mu.Lock()
	delete(s.cache, connectionID)
	s.mu.Unlock()
}
