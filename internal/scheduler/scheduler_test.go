package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hydranet/aquabill/internal/clock"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReconcile struct {
	sweeps    int
	olderThan time.Duration
	settled   int
	err       error
}

func (f *fakeReconcile) BeginPending(ctx context.Context, marker reconciledomain.PendingPaymentMarker, supersede bool) (reconciledomain.PendingPaymentMarker, error) {
	return marker, nil
}

func (f *fakeReconcile) AttachReference(ctx context.Context, marker reconciledomain.PendingPaymentMarker, externalReference string) (reconciledomain.PendingPaymentMarker, error) {
	return marker, nil
}

func (f *fakeReconcile) Pending(ctx context.Context, connectionID string) (*reconciledomain.PendingPaymentMarker, error) {
	return nil, nil
}

func (f *fakeReconcile) Reconcile(ctx context.Context, connectionID string) (reconciledomain.Result, error) {
	return reconciledomain.Result{}, nil
}

func (f *fakeReconcile) Resolve(ctx context.Context, marker reconciledomain.PendingPaymentMarker) (reconciledomain.Result, error) {
	return reconciledomain.Result{}, nil
}

func (f *fakeReconcile) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	f.sweeps++
	f.olderThan = olderThan
	return f.settled, f.err
}

func newScheduler(rec reconciledomain.Service, cfg Config) *Scheduler {
	return New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)),
		Reconcile: rec,
		Config:    cfg,
	})
}

func TestRunOncePassesStalenessThreshold(t *testing.T) {
	rec := &fakeReconcile{settled: 2}
	s := newScheduler(rec, Config{StaleAfter: 10 * time.Minute})

	s.RunOnce(context.Background())
	require.Equal(t, 1, rec.sweeps)
	require.Equal(t, 10*time.Minute, rec.olderThan)
}

func TestRunOnceSurvivesSweepError(t *testing.T) {
	rec := &fakeReconcile{err: errors.New("db gone")}
	s := newScheduler(rec, Config{})

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	require.Equal(t, 2, rec.sweeps)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, time.Minute, cfg.RunInterval)
	require.Equal(t, 5*time.Minute, cfg.StaleAfter)
}
