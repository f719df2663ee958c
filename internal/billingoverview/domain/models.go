// Package domain exposes the per-connection outstanding balance summary.
package domain

import (
	"context"
	"time"

	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"github.com/hydranet/aquabill/internal/status"
)

// Summary aggregates the outstanding position of one connection.
type Summary struct {
	TotalDue            int64            `json:"total_due"`
	PerBillBalance      map[string]int64 `json:"per_bill_balance"`
	EarliestOverdueDays int              `json:"earliest_overdue_days"`
	EarliestDueBillID   string           `json:"earliest_due_bill_id,omitempty"`
	UnpaidCount         int              `json:"unpaid_count"`
	PastDueCount        int              `json:"past_due_count"`
}

// BillView pairs a bill with its rendered status.
type BillView struct {
	Bill   billdomain.Bill       `json:"bill"`
	Status status.RenderedStatus `json:"status"`
}

type ConnectionSummary struct {
	ConnectionID string                          `json:"connection_id"`
	State        connectiondomain.LifecycleState `json:"state"`
	Bills        []BillView                      `json:"bills"`
	Summary      Summary                         `json:"summary"`
}

type Service interface {
	GetBillingSummary(ctx context.Context, connectionID string) (ConnectionSummary, error)
}

// Summarize computes the aggregate position for one connection's bills.
// Pure and deterministic given today; date-only comparisons throughout.
func Summarize(bills []billdomain.Bill, today time.Time) Summary {
	summary := Summary{PerBillBalance: make(map[string]int64, len(bills))}

	var earliest *billdomain.Bill
	var singleUnpaidBalance int64
	var summedBalance int64

	for i := range bills {
		b := bills[i]
		summary.PerBillBalance[b.ID] = b.Balance
		if !b.Unpaid() {
			continue
		}

		summary.UnpaidCount++
		singleUnpaidBalance = b.Balance
		summedBalance += b.Balance
		if DaysBetween(today, b.DueDate) > 0 {
			summary.PastDueCount++
		}

		if earliest == nil || earlierThan(b, *earliest) {
			earliest = &bills[i]
		}
	}

	// A single unpaid bill is reported directly rather than through the
	// multi-bill sum, so one bill can never be double counted across the
	// two aggregation paths.
	switch summary.UnpaidCount {
	case 0:
		summary.TotalDue = 0
	case 1:
		summary.TotalDue = singleUnpaidBalance
	default:
		summary.TotalDue = summedBalance
	}

	if earliest != nil {
		summary.EarliestDueBillID = earliest.ID
		summary.EarliestOverdueDays = DaysBetween(today, earliest.DueDate)
	}

	return summary
}

// earlierThan orders unpaid bills by due date; on equal due dates the bill
// with the larger balance carries the greater financial consequence and wins.
func earlierThan(a, b billdomain.Bill) bool {
	aDue, bDue := dateOnly(a.DueDate), dateOnly(b.DueDate)
	if aDue.Before(bDue) {
		return true
	}
	if aDue.Equal(bDue) {
		return a.Balance > b.Balance
	}
	return false
}

// DaysBetween returns whole days from due to today, ignoring time of day.
// Positive means past due, negative means not yet due.
func DaysBetween(today, due time.Time) int {
	t := dateOnly(today)
	d := dateOnly(due)
	return int(t.Sub(d).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
