package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	billservice "github.com/hydranet/aquabill/internal/bill/service"
	overviewdomain "github.com/hydranet/aquabill/internal/billingoverview/domain"
	overviewservice "github.com/hydranet/aquabill/internal/billingoverview/service"
	"github.com/hydranet/aquabill/internal/clock"
	"github.com/hydranet/aquabill/internal/config"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	connectionservice "github.com/hydranet/aquabill/internal/connection/service"
	"github.com/hydranet/aquabill/internal/events"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
	paymentservice "github.com/hydranet/aquabill/internal/payment/service"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	reconcileservice "github.com/hydranet/aquabill/internal/reconcile/service"
	"github.com/hydranet/aquabill/internal/status"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeBillingBackend plays the upstream billing system of record.
type fakeBillingBackend struct {
	bills map[string][]billdomain.RawBill
}

func (f *fakeBillingBackend) FetchBills(ctx context.Context, connectionID string) ([]billdomain.RawBill, error) {
	return f.bills[connectionID], nil
}

// fakeAccountBackend plays account management.
type fakeAccountBackend struct {
	states map[string]string
}

func (f *fakeAccountBackend) FetchConnectionState(ctx context.Context, connectionID string) (string, error) {
	if state, ok := f.states[connectionID]; ok {
		return state, nil
	}
	return "active", nil
}

// walletGateway plays a wallet provider whose settlements arrive later.
type walletGateway struct {
	settle paymentdomain.GatewayStatus
}

func (g *walletGateway) Provider() string { return "gcash" }

func (g *walletGateway) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	return paymentdomain.CheckoutSession{
		ExternalReference: "co-" + req.ReferenceID,
		CheckoutURL:       "https://pay.example/" + req.ReferenceID,
		Status:            paymentdomain.GatewayPending,
	}, nil
}

func (g *walletGateway) GetStatus(ctx context.Context, externalReference string) (paymentdomain.GatewayStatus, error) {
	return g.settle, nil
}

type env struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	gateway   *walletGateway
	bills     billdomain.Service
	overview  overviewdomain.Service
	payments  paymentdomain.Service
	reconcile reconciledomain.Service
}

func newEnv(t *testing.T, backend *fakeBillingBackend) *env {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&billdomain.Bill{},
		&connectiondomain.Connection{},
		&reconciledomain.PendingPaymentMarker{},
		&paymentdomain.PaymentAttempt{},
	))

	fc := clock.NewFakeClock(time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	holder := &config.PolicyHolder{}
	bus := events.NewBus(log)

	bills := billservice.NewService(billservice.Params{
		DB:      db,
		Log:     log,
		Clock:   fc,
		Backend: backend,
	})
	connections := connectionservice.NewService(connectionservice.Params{
		DB:      db,
		Log:     log,
		Clock:   fc,
		Backend: &fakeAccountBackend{},
	})
	overview := overviewservice.NewService(overviewservice.Params{
		Log:         log,
		Clock:       fc,
		Bills:       bills,
		Connections: connections,
		Policy:      holder,
		Bus:         bus,
	})

	gateway := &walletGateway{settle: paymentdomain.GatewayPending}
	adapters := map[string]paymentdomain.GatewayAdapter{"gcash": gateway}

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
	payments := paymentservice.NewService(paymentservice.Params{
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

	return &env{
		db:        db,
		clock:     fc,
		gateway:   gateway,
		bills:     bills,
		overview:  overview,
		payments:  payments,
		reconcile: reconcileSvc,
	}
}

// The full portal journey: an overdue bill arrives from upstream, the payer
// settles it through a wallet checkout, and reconciliation flips the bill to
// paid everywhere.
func TestOverdueBillPaidInFull(t *testing.T) {
	backend := &fakeBillingBackend{bills: map[string][]billdomain.RawBill{
		"C-1001": {
			{
				ID:           "BILL-2026-02",
				ConnectionID: "C-1001",
				DueDate:      "2026-02-20",
				TotalAmount:  ptr(int64(45000)),
				Status:       "unpaid",
			},
		},
	}}
	e := newEnv(t, backend)
	ctx := context.Background()

	// The summary mirrors the upstream bill and renders it overdue.
	summary, err := e.overview.GetBillingSummary(ctx, "C-1001")
	require.NoError(t, err)
	require.Equal(t, int64(45000), summary.Summary.TotalDue)
	require.Equal(t, 1, summary.Summary.UnpaidCount)
	require.Len(t, summary.Bills, 1)
	require.Equal(t, status.Overdue, summary.Bills[0].Status)
	require.Equal(t, 18, summary.Summary.EarliestOverdueDays)

	// Full payment via gcash: the gateway hands back a checkout URL and the
	// connection now carries its single pending marker.
	result, err := e.payments.StartPayment(ctx, paymentdomain.PaymentIntent{
		ConnectionID: "C-1001",
		BillID:       "BILL-2026-02",
		Type:         paymentdomain.PaymentTypeFull,
		Provider:     "gcash",
	})
	require.NoError(t, err)
	require.False(t, result.Settled)
	require.NotEmpty(t, result.CheckoutURL)

	marker, err := e.reconcile.Pending(ctx, "C-1001")
	require.NoError(t, err)
	require.NotNil(t, marker)
	require.Equal(t, int64(45000), marker.Amount)

	// A second payment while the first is unresolved is refused.
	_, err = e.payments.StartPayment(ctx, paymentdomain.PaymentIntent{
		ConnectionID: "C-1001",
		BillID:       "BILL-2026-02",
		Type:         paymentdomain.PaymentTypeFull,
		Provider:     "gcash",
	})
	require.ErrorIs(t, err, reconciledomain.ErrPendingExists)

	// The wallet settles; the return-from-checkout reconcile applies it.
	e.gateway.settle = paymentdomain.GatewaySuccess
	recResult, err := e.reconcile.Reconcile(ctx, "C-1001")
	require.NoError(t, err)
	require.Equal(t, reconciledomain.OutcomeResolved, recResult.Outcome)
	require.Equal(t, int64(0), recResult.NewBalance)

	bill, err := e.bills.GetByID(ctx, "BILL-2026-02")
	require.NoError(t, err)
	require.Equal(t, billdomain.PaymentStatusPaid, bill.PaymentStatus)
	require.Equal(t, int64(0), bill.Balance)
	require.NotNil(t, bill.SettledAt)

	// Reconciling again is a no-op; the money moved exactly once.
	recResult, err = e.reconcile.Reconcile(ctx, "C-1001")
	require.NoError(t, err)
	require.Equal(t, reconciledomain.OutcomeNone, recResult.Outcome)

	// The summary now shows a settled account.
	summary, err = e.overview.GetBillingSummary(ctx, "C-1001")
	require.NoError(t, err)
	require.Equal(t, int64(0), summary.Summary.TotalDue)
	require.Equal(t, 0, summary.Summary.UnpaidCount)
	require.Equal(t, status.Paid, summary.Bills[0].Status)

	// A fresh upstream sync cannot roll the settled payment back.
	_, err = e.bills.Sync(ctx, "C-1001")
	require.NoError(t, err)
	bill, err = e.bills.GetByID(ctx, "BILL-2026-02")
	require.NoError(t, err)
	require.Equal(t, int64(45000), bill.AmountPaid)
}

// A partial payment leaves the remainder due and the bill badged partial
// even while the connection is flagged for disconnection.
func TestPartialPaymentKeepsRemainderDue(t *testing.T) {
	backend := &fakeBillingBackend{bills: map[string][]billdomain.RawBill{
		"C-2002": {
			{
				ID:           "BILL-2026-03",
				ConnectionID: "C-2002",
				DueDate:      "2026-02-01",
				TotalAmount:  ptr(int64(80000)),
				Status:       "overdue",
			},
		},
	}}
	e := newEnv(t, backend)
	ctx := context.Background()

	_, err := e.overview.GetBillingSummary(ctx, "C-2002")
	require.NoError(t, err)

	_, err = e.payments.StartPayment(ctx, paymentdomain.PaymentIntent{
		ConnectionID: "C-2002",
		BillID:       "BILL-2026-03",
		Type:         paymentdomain.PaymentTypePartial,
		Amount:       30000,
		Provider:     "gcash",
	})
	require.NoError(t, err)

	e.gateway.settle = paymentdomain.GatewaySuccess
	recResult, err := e.reconcile.Reconcile(ctx, "C-2002")
	require.NoError(t, err)
	require.Equal(t, reconciledomain.OutcomeResolved, recResult.Outcome)
	require.Equal(t, int64(50000), recResult.NewBalance)

	bill, err := e.bills.GetByID(ctx, "BILL-2026-03")
	require.NoError(t, err)
	require.Equal(t, billdomain.PaymentStatusPartial, bill.PaymentStatus)
	require.Equal(t, int64(30000), bill.AmountPaid)

	summary, err := e.overview.GetBillingSummary(ctx, "C-2002")
	require.NoError(t, err)
	require.Equal(t, int64(50000), summary.Summary.TotalDue)
	require.Equal(t, status.Partial, summary.Bills[0].Status)
}

// An abandoned checkout expires after the retention window and frees the
// connection for a new payment.
func TestAbandonedCheckoutExpires(t *testing.T) {
	backend := &fakeBillingBackend{bills: map[string][]billdomain.RawBill{
		"C-3003": {
			{
				ID:           "BILL-2026-04",
				ConnectionID: "C-3003",
				DueDate:      "2026-03-01",
				TotalAmount:  ptr(int64(25000)),
				Status:       "unpaid",
			},
		},
	}}
	e := newEnv(t, backend)
	ctx := context.Background()

	_, err := e.overview.GetBillingSummary(ctx, "C-3003")
	require.NoError(t, err)

	_, err = e.payments.StartPayment(ctx, paymentdomain.PaymentIntent{
		ConnectionID: "C-3003",
		BillID:       "BILL-2026-04",
		Type:         paymentdomain.PaymentTypeFull,
		Provider:     "gcash",
	})
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)

	recResult, err := e.reconcile.Reconcile(ctx, "C-3003")
	require.Equal(t, reconciledomain.OutcomeExpired, recResult.Outcome)
	_, isTimeout := reconciledomain.AsTimeout(err)
	require.True(t, isTimeout)

	bill, err := e.bills.GetByID(ctx, "BILL-2026-04")
	require.NoError(t, err)
	require.Equal(t, int64(0), bill.AmountPaid)

	// The slot is free again.
	result, err := e.payments.StartPayment(ctx, paymentdomain.PaymentIntent{
		ConnectionID: "C-3003",
		BillID:       "BILL-2026-04",
		Type:         paymentdomain.PaymentTypeFull,
		Provider:     "gcash",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.CheckoutURL)
}

func ptr[T any](v T) *T { return &v }
