package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	billservice "github.com/hydranet/aquabill/internal/bill/service"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"github.com/hydranet/aquabill/internal/events"
	"github.com/hydranet/aquabill/internal/payment/domain"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	reconcileservice "github.com/hydranet/aquabill/internal/reconcile/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubBackend struct{}

func (stubBackend) FetchBills(ctx context.Context, connectionID string) ([]billdomain.RawBill, error) {
	return nil, nil
}

type stubConnections struct {
	state connectiondomain.LifecycleState
}

func (s *stubConnections) GetState(ctx context.Context, connectionID string) (connectiondomain.LifecycleState, error) {
	if s.state == "" {
		return connectiondomain.StateActive, nil
	}
	return s.state, nil
}

type scriptedGateway struct {
	checkoutStatus domain.GatewayStatus
	checkoutErr    error
	pollStatus     domain.GatewayStatus
	checkouts      int
}

func (g *scriptedGateway) Provider() string { return "gcash" }

func (g *scriptedGateway) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	g.checkouts++
	if g.checkoutErr != nil {
		return domain.CheckoutSession{}, g.checkoutErr
	}
	return domain.CheckoutSession{
		ExternalReference: "co-" + req.ReferenceID,
		CheckoutURL:       "https://pay.example/co-" + req.ReferenceID,
		Status:            g.checkoutStatus,
	}, nil
}

func (g *scriptedGateway) GetStatus(ctx context.Context, externalReference string) (domain.GatewayStatus, error) {
	return g.pollStatus, nil
}

type fixture struct {
	db          *gorm.DB
	svc         domain.Service
	clock       *clock.FakeClock
	gateway     *scriptedGateway
	connections *stubConnections
	reconcile   reconciledomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billdomain.Bill{},
		&reconciledomain.PendingPaymentMarker{},
		&domain.PaymentAttempt{},
	))

	fc := clock.NewFakeClock(time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	bills := billservice.NewService(billservice.Params{
		DB:      db,
		Log:     log,
		Clock:   fc,
		Backend: stubBackend{},
	})

	gateway := &scriptedGateway{checkoutStatus: domain.GatewayPending, pollStatus: domain.GatewayPending}
	adapters := map[string]domain.GatewayAdapter{"gcash": gateway}
	holder := &config.PolicyHolder{}
	bus := events.NewBus(log)

	reconcileSvc := reconcileservice.NewService(reconcileservice.Params{
		DB:       db,
		Log:      log,
		Clock:    fc,
		GenID:    node,
		Policy:   holder,
		Adapters: adapters,
		Bills:    bills,
		Bus:      bus,
	})

	connections := &stubConnections{}
	svc := NewService(Params{
		DB:          db,
		Log:         log,
		Clock:       fc,
		GenID:       node,
		Policy:      holder,
		Adapters:    adapters,
		Bills:       bills,
		Connections: connections,
		Reconcile:   reconcileSvc,
	})

	return &fixture{
		db:          db,
		svc:         svc,
		clock:       fc,
		gateway:     gateway,
		connections: connections,
		reconcile:   reconcileSvc,
	}
}

func (f *fixture) seedBill(t *testing.T, id, connectionID string, balance int64) {
	t.Helper()
	bill := billdomain.Bill{
		ID:            id,
		ConnectionID:  connectionID,
		DueDate:       f.clock.Now().AddDate(0, 0, -10),
		TotalAmount:   balance,
		Balance:       balance,
		PaymentStatus: billdomain.PaymentStatusOverdue,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&bill).Error)
}

func fullIntent(billID string) domain.PaymentIntent {
	return domain.PaymentIntent{
		ConnectionID: "C-1",
		BillID:       billID,
		Type:         domain.PaymentTypeFull,
		Provider:     "gcash",
	}
}

func TestStartPaymentReturnsCheckoutURL(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)

	result, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.NoError(t, err)
	require.False(t, result.Settled)
	require.NotEmpty(t, result.CheckoutURL)
	require.Equal(t, domain.AttemptPending, result.Attempt.Status)
	require.Equal(t, int64(45000), result.Attempt.Amount)
	require.Equal(t, "PHP", result.Attempt.Currency)

	pending, err := f.reconcile.Pending(context.Background(), "C-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, "B-1", pending.BillID)
	require.NotEmpty(t, pending.ExternalReference)
}

func TestStartPaymentRefusedWhilePending(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	ctx := context.Background()

	_, err := f.svc.StartPayment(ctx, fullIntent("B-1"))
	require.NoError(t, err)

	_, err = f.svc.StartPayment(ctx, fullIntent("B-1"))
	require.ErrorIs(t, err, reconciledomain.ErrPendingExists)
	require.Equal(t, 1, f.gateway.checkouts)
}

func TestStartPaymentSupersedeReplacesPending(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	ctx := context.Background()

	_, err := f.svc.StartPayment(ctx, fullIntent("B-1"))
	require.NoError(t, err)

	intent := fullIntent("B-1")
	intent.Supersede = true
	result, err := f.svc.StartPayment(ctx, intent)
	require.NoError(t, err)
	require.NotEmpty(t, result.CheckoutURL)
	require.Equal(t, 2, f.gateway.checkouts)
}

func TestStartPaymentResolvesSettledPendingFirst(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.seedBill(t, "B-2", "C-1", 30000)
	ctx := context.Background()

	_, err := f.svc.StartPayment(ctx, fullIntent("B-1"))
	require.NoError(t, err)

	// The first checkout settled at the gateway while nobody was looking.
	f.gateway.pollStatus = domain.GatewaySuccess

	result, err := f.svc.StartPayment(ctx, fullIntent("B-2"))
	require.NoError(t, err)
	require.NotEmpty(t, result.CheckoutURL)

	var first billdomain.Bill
	require.NoError(t, f.db.First(&first, "id = ?", "B-1").Error)
	require.Equal(t, billdomain.PaymentStatusPaid, first.PaymentStatus)
}

func TestStartPaymentUnknownBill(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartPayment(context.Background(), fullIntent("B-404"))
	require.ErrorIs(t, err, domain.ErrNoBillFound)
}

func TestStartPaymentWrongConnection(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-other", 45000)

	_, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.ErrorIs(t, err, domain.ErrNoBillFound)
}

func TestStartPaymentBlockedConnection(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.connections.state = connectiondomain.StateDisconnected

	_, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.ErrorIs(t, err, domain.ErrPaymentBlocked)
	require.Zero(t, f.gateway.checkouts)
}

func TestStartPaymentBlockedWhileReconnectionScheduled(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.connections.state = connectiondomain.StateScheduledForReconnection

	_, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.ErrorIs(t, err, domain.ErrPaymentBlocked)
	require.Zero(t, f.gateway.checkouts)
}

func TestStartPaymentAllowedForReconnection(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.connections.state = connectiondomain.StateForReconnection

	result, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.NoError(t, err)
	require.NotEmpty(t, result.CheckoutURL)
}

func TestStartPaymentUnknownProvider(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)

	intent := fullIntent("B-1")
	intent.Provider = "cash_on_hand"
	_, err := f.svc.StartPayment(context.Background(), intent)
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestStartPaymentPartialBelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)

	intent := fullIntent("B-1")
	intent.Type = domain.PaymentTypePartial
	intent.Amount = 50
	_, err := f.svc.StartPayment(context.Background(), intent)
	ve, ok := billdomain.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "below_minimum", ve.Code)
}

func TestStartPaymentSynchronousSettlement(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.gateway.checkoutStatus = domain.GatewaySuccess

	result, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	require.NoError(t, err)
	require.True(t, result.Settled)
	require.Equal(t, int64(0), result.NewBalance)

	pending, err := f.reconcile.Pending(context.Background(), "C-1")
	require.NoError(t, err)
	require.Nil(t, pending)

	var bill billdomain.Bill
	require.NoError(t, f.db.First(&bill, "id = ?", "B-1").Error)
	require.Equal(t, billdomain.PaymentStatusPaid, bill.PaymentStatus)
}

func TestStartPaymentGatewayErrorLeavesNoMarker(t *testing.T) {
	f := newFixture(t)
	f.seedBill(t, "B-1", "C-1", 45000)
	f.gateway.checkoutErr = &domain.GatewayError{Provider: "gcash", Reason: "upstream 503"}

	_, err := f.svc.StartPayment(context.Background(), fullIntent("B-1"))
	ge, ok := domain.AsGatewayError(err)
	require.True(t, ok)
	require.Equal(t, "gcash", ge.Provider)

	pending, err := f.reconcile.Pending(context.Background(), "C-1")
	require.NoError(t, err)
	require.Nil(t, pending)

	attempts, err := f.svc.ListAttempts(context.Background(), "C-1")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, domain.AttemptFailed, attempts[0].Status)
}
