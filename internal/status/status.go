// Package status is the single source of truth for the rendered status of a
// bill. Every badge shown by the portal goes through Classify; views never
// re-derive status locally.
package status

import (
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
)

// RenderedStatus is the status a bill is displayed with.
type RenderedStatus string

const (
	Paid                      RenderedStatus = "paid"
	Partial                   RenderedStatus = "partial"
	DueSoon                   RenderedStatus = "due_soon"
	Overdue                   RenderedStatus = "overdue"
	ForDisconnection          RenderedStatus = "for_disconnection"
	ScheduledForDisconnection RenderedStatus = "scheduled_for_disconnection"
	Disconnected              RenderedStatus = "disconnected"
	ForReconnection           RenderedStatus = "for_reconnection"
	ScheduledForReconnection  RenderedStatus = "scheduled_for_reconnection"
	Pending                   RenderedStatus = "pending"
	Unknown                   RenderedStatus = "unknown"
)

// Input carries everything Classify needs. The raw conditions are not
// mutually exclusive; the priority order below is the contract.
type Input struct {
	PaymentStatus   billdomain.PaymentStatus
	ConnectionState connectiondomain.LifecycleState

	// EarliestOverdueDays is negative while the earliest unpaid bill is not
	// yet due, positive once it is past due. The caller resolves whether it
	// refers to this bill alone or to the earliest of several unpaid bills.
	EarliestOverdueDays int
	DaysUntilDue        int

	DueSoonDays int
}

// Classify maps a bill and its connection lifecycle state onto one rendered
// status. First match wins.
func Classify(in Input) RenderedStatus {
	dueSoonDays := in.DueSoonDays
	if dueSoonDays <= 0 {
		dueSoonDays = 3
	}

	switch in.PaymentStatus {
	case billdomain.PaymentStatusUnpaid, billdomain.PaymentStatusPartial,
		billdomain.PaymentStatusPaid, billdomain.PaymentStatusOverdue,
		billdomain.PaymentStatusConsolidated:
	default:
		return Unknown
	}

	switch in.ConnectionState {
	case connectiondomain.StateDisconnected:
		return Disconnected
	case connectiondomain.StateForReconnection:
		return ForReconnection
	case connectiondomain.StateScheduledForReconnection:
		return ScheduledForReconnection
	case connectiondomain.StateScheduledForDisconnection:
		return ScheduledForDisconnection
	}

	switch in.PaymentStatus {
	case billdomain.PaymentStatusPaid:
		return Paid
	case billdomain.PaymentStatusPartial:
		return Partial
	}

	if in.ConnectionState == connectiondomain.StateForDisconnection {
		return ForDisconnection
	}

	if in.EarliestOverdueDays > 0 {
		return Overdue
	}
	if in.DaysUntilDue >= 0 && in.DaysUntilDue <= dueSoonDays {
		return DueSoon
	}
	return Pending
}
