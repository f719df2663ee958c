// Package domain defines the pending payment marker and its reconciliation
// outcomes. A connection holds at most one active marker at a time.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
)

// PendingPaymentMarker records a checkout handed to a gateway whose outcome
// is not yet known. The unique index on connection_id is the invariant: the
// database refuses a second active marker for the same connection.
type PendingPaymentMarker struct {
	ID                snowflake.ID              `json:"id" gorm:"primaryKey"`
	ConnectionID      string                    `json:"connection_id" gorm:"type:text;not null;uniqueIndex"`
	BillID            string                    `json:"bill_id" gorm:"type:text;not null"`
	AttemptID         snowflake.ID              `json:"attempt_id" gorm:"not null"`
	Provider          string                    `json:"provider" gorm:"type:text;not null"`
	Type              paymentdomain.PaymentType `json:"type" gorm:"type:text;not null"`
	Amount            int64                     `json:"amount" gorm:"not null"`
	ExternalReference string                    `json:"external_reference" gorm:"type:text;not null"`
	CreatedAt         time.Time                 `json:"created_at" gorm:"not null"`
}

func (PendingPaymentMarker) TableName() string { return "pending_payment_markers" }

// Age reports how long the marker has been waiting.
func (m PendingPaymentMarker) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// Outcome is the result of one reconciliation pass over a connection.
type Outcome string

const (
	// OutcomeNone means there was no marker to reconcile.
	OutcomeNone Outcome = "none"
	// OutcomeResolved means the gateway confirmed and the bill was updated.
	OutcomeResolved Outcome = "resolved"
	// OutcomeFailed means the gateway reported failure; the marker is gone
	// and the bill untouched.
	OutcomeFailed Outcome = "failed"
	// OutcomeStillPending means the gateway has not settled yet.
	OutcomeStillPending Outcome = "still_pending"
	// OutcomeExpired means the marker outlived the retention policy.
	OutcomeExpired Outcome = "expired"
)

type Result struct {
	Outcome    Outcome               `json:"outcome"`
	Marker     *PendingPaymentMarker `json:"marker,omitempty"`
	NewBalance int64                 `json:"new_balance,omitempty"`
}

var (
	ErrPendingExists = errors.New("pending_payment_exists")
	ErrMarkerGone    = errors.New("pending_payment_marker_gone")
)

// TimeoutError reports a marker that expired before the gateway settled.
type TimeoutError struct {
	ConnectionID string
	Age          time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("reconciliation timed out for connection %s after %s", e.ConnectionID, e.Age)
}

func AsTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

type Service interface {
	// BeginPending creates the marker for a checkout in flight. With
	// supersede set an existing marker is replaced instead of refused.
	BeginPending(ctx context.Context, marker PendingPaymentMarker, supersede bool) (PendingPaymentMarker, error)
	// AttachReference replaces the marker with a copy carrying the gateway
	// reference, atomically. Markers are only ever created and deleted;
	// a reader sees either the reference-less marker or the finished one,
	// never a half-written row. Returns ErrMarkerGone when the marker was
	// cleared in the meantime.
	AttachReference(ctx context.Context, marker PendingPaymentMarker, externalReference string) (PendingPaymentMarker, error)
	// Pending returns the active marker, or nil when there is none.
	Pending(ctx context.Context, connectionID string) (*PendingPaymentMarker, error)
	// Reconcile polls the gateway for the active marker and applies the
	// outcome. Calling it with no marker present is a harmless no-op.
	Reconcile(ctx context.Context, connectionID string) (Result, error)
	// Resolve applies a settlement that is already known, bypassing the
	// gateway poll. Used when checkout settles synchronously.
	Resolve(ctx context.Context, marker PendingPaymentMarker) (Result, error)
	// SweepStale reconciles every marker older than the given age.
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}
