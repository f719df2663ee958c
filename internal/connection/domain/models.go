// Package domain holds the read-only connection lifecycle mirror. The state
// is owned by account management; the engine only reads it to gate payments.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

type LifecycleState string

const (
	StateActive                    LifecycleState = "active"
	StateForDisconnection          LifecycleState = "for_disconnection"
	StateScheduledForDisconnection LifecycleState = "scheduled_for_disconnection"
	StateDisconnected              LifecycleState = "disconnected"
	StateForReconnection           LifecycleState = "for_reconnection"
	StateScheduledForReconnection  LifecycleState = "scheduled_for_reconnection"
)

var ErrNotFound = errors.New("connection_not_found")

// ParseState normalizes an upstream state string. Unknown states default to
// active so a new upstream state never blocks rendering.
func ParseState(raw string) LifecycleState {
	switch LifecycleState(strings.ToLower(strings.TrimSpace(raw))) {
	case StateForDisconnection:
		return StateForDisconnection
	case StateScheduledForDisconnection:
		return StateScheduledForDisconnection
	case StateDisconnected:
		return StateDisconnected
	case StateForReconnection:
		return StateForReconnection
	case StateScheduledForReconnection:
		return StateScheduledForReconnection
	default:
		return StateActive
	}
}

// PaymentBlocked reports whether payment must not be offered in this state.
// A disconnected line has nothing to pay against, and a reconnection that is
// already scheduled means the settlement was received; for_reconnection stays
// payable because that payment is what triggers the reconnection.
func (s LifecycleState) PaymentBlocked() bool {
	return s == StateDisconnected || s == StateScheduledForReconnection
}

// Connection is the cached lifecycle snapshot for one service connection.
type Connection struct {
	ID          string         `gorm:"primaryKey"`
	State       LifecycleState `gorm:"type:text;not null;default:'active'"`
	RefreshedAt time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "connections" }

// AccountBackend fetches lifecycle state from account management.
type AccountBackend interface {
	FetchConnectionState(ctx context.Context, connectionID string) (string, error)
}

type Service interface {
	// GetState returns the lifecycle state, refreshing the cached snapshot
	// from upstream when it is stale.
	GetState(ctx context.Context, connectionID string) (LifecycleState, error)
}
