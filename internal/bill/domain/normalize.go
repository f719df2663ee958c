package domain

import (
	"strings"
	"time"
)

// RawBill is an upstream billing record. Field aliases accumulated over the
// backend's history are all accepted here and nowhere else; every consumer
// past this boundary sees only the typed Bill.
type RawBill struct {
	ID           string `json:"id"`
	BillNo       string `json:"bill_no"`
	ConnectionID string `json:"connection_id"`
	AccountNo    string `json:"account_no"`

	PeriodStart string `json:"period_start"`
	FromDate    string `json:"from_date"`
	PeriodEnd   string `json:"period_end"`
	ToDate      string `json:"to_date"`
	DueDate     string `json:"due_date"`

	PreviousReading *int64 `json:"previous_reading"`
	PrevReading     *int64 `json:"prev_reading"`
	PresentReading  *int64 `json:"present_reading"`
	CurrentReading  *int64 `json:"current_reading"`

	TotalAmount *int64 `json:"total_amount"`
	AmountDue   *int64 `json:"amount_due"`
	AmountPaid  *int64 `json:"amount_paid"`
	PaidAmount  *int64 `json:"paid_amount"`
	Balance     *int64 `json:"balance"`

	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// Normalize turns a raw upstream record into a canonical Bill.
//
// Resolution order is fixed: an explicitly-provided balance wins and
// amount_paid is re-derived from it; otherwise balance is derived from
// total_amount - amount_paid, with a missing amount_paid defaulting to 0.
// Records with a missing or negative total, an out-of-range balance, or a
// present reading below the previous reading are rejected, never clamped.
func Normalize(raw RawBill, now time.Time) (Bill, error) {
	id := firstNonEmpty(raw.ID, raw.BillNo)
	if id == "" {
		return Bill{}, &MalformedBillError{Field: "id", Reason: "missing"}
	}
	connectionID := firstNonEmpty(raw.ConnectionID, raw.AccountNo)
	if connectionID == "" {
		return Bill{}, &MalformedBillError{BillID: id, Field: "connection_id", Reason: "missing"}
	}

	total, ok := firstInt(raw.TotalAmount, raw.AmountDue)
	if !ok {
		return Bill{}, &MalformedBillError{BillID: id, Field: "total_amount", Reason: "missing"}
	}
	if total < 0 {
		return Bill{}, &MalformedBillError{BillID: id, Field: "total_amount", Reason: "negative"}
	}

	paid, _ := firstInt(raw.AmountPaid, raw.PaidAmount)
	if paid < 0 {
		return Bill{}, &MalformedBillError{BillID: id, Field: "amount_paid", Reason: "negative"}
	}

	var balance int64
	if raw.Balance != nil {
		balance = *raw.Balance
		if balance < 0 || balance > total {
			return Bill{}, &MalformedBillError{BillID: id, Field: "balance", Reason: "out_of_range"}
		}
		paid = total - balance
	} else {
		if paid > total {
			return Bill{}, &MalformedBillError{BillID: id, Field: "amount_paid", Reason: "exceeds_total"}
		}
		balance = total - paid
	}

	previous, _ := firstInt(raw.PreviousReading, raw.PrevReading)
	present, _ := firstInt(raw.PresentReading, raw.CurrentReading)
	if present < previous {
		return Bill{}, &MalformedBillError{BillID: id, Field: "present_reading", Reason: "below_previous_reading"}
	}

	dueDate, err := parseDate(raw.DueDate)
	if err != nil {
		return Bill{}, &MalformedBillError{BillID: id, Field: "due_date", Reason: "unparseable"}
	}
	periodStart, _ := parseDate(firstNonEmpty(raw.PeriodStart, raw.FromDate))
	periodEnd, _ := parseDate(firstNonEmpty(raw.PeriodEnd, raw.ToDate))

	bill := Bill{
		ID:              id,
		ConnectionID:    connectionID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		DueDate:         dueDate,
		PreviousReading: previous,
		PresentReading:  present,
		Consumption:     present - previous,
		TotalAmount:     total,
		AmountPaid:      paid,
		Balance:         balance,
		PaymentStatus:   resolveStatus(firstNonEmpty(raw.Status, raw.PaymentStatus), total, paid),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	return bill, nil
}

// resolveStatus keeps the upstream status only where it cannot contradict
// the amount coupling required by the amount/balance invariant.
func resolveStatus(explicit string, total, paid int64) PaymentStatus {
	if paid == total {
		return PaymentStatusPaid
	}
	if paid > 0 {
		return PaymentStatusPartial
	}

	switch PaymentStatus(strings.ToLower(strings.TrimSpace(explicit))) {
	case PaymentStatusOverdue:
		return PaymentStatusOverdue
	case PaymentStatusConsolidated:
		return PaymentStatusConsolidated
	case PaymentStatusPartial, PaymentStatusPaid, PaymentStatusUnpaid:
		return PaymentStatusUnpaid
	default:
		return PaymentStatusUnpaid
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errMissingDate
	}
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

var errMissingDate = &MalformedBillError{Field: "date", Reason: "missing"}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func firstInt(values ...*int64) (int64, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}
