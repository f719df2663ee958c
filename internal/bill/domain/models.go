// Package domain contains the canonical bill model mirrored from the
// upstream billing backend. All amounts are centavos.
package domain

import (
	"time"
)

// PaymentStatus represents a bill's payment lifecycle state.
type PaymentStatus string

const (
	PaymentStatusUnpaid       PaymentStatus = "unpaid"
	PaymentStatusPartial      PaymentStatus = "partial"
	PaymentStatusPaid         PaymentStatus = "paid"
	PaymentStatusOverdue      PaymentStatus = "overdue"
	PaymentStatusConsolidated PaymentStatus = "consolidated"
)

// Bill is one billing cycle for one connection.
//
// Balance is derived: it is recomputed from TotalAmount and AmountPaid on
// every write and never trusted from any other source.
type Bill struct {
	ID           string `gorm:"primaryKey"`
	ConnectionID string `gorm:"not null;index"`

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
	DueDate     time.Time `gorm:"not null;index"`

	PreviousReading int64 `gorm:"not null"`
	PresentReading  int64 `gorm:"not null"`
	Consumption     int64 `gorm:"not null"`

	TotalAmount   int64         `gorm:"not null"`
	AmountPaid    int64         `gorm:"not null;default:0"`
	Balance       int64         `gorm:"not null"`
	PaymentStatus PaymentStatus `gorm:"type:text;not null;default:'unpaid'"`

	SettledAt  *time.Time `gorm:""`
	ArchivedAt *time.Time `gorm:""`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (Bill) TableName() string { return "bills" }

// Unpaid reports whether the bill still carries an outstanding balance.
// Consolidated bills are treated as unpaid.
func (b Bill) Unpaid() bool {
	switch b.PaymentStatus {
	case PaymentStatusUnpaid, PaymentStatusPartial, PaymentStatusOverdue, PaymentStatusConsolidated:
		return true
	default:
		return false
	}
}

// ApplyPayment credits amount against the bill and recomputes the derived
// fields. Amount must be positive and must not exceed the remaining balance.
func (b *Bill) ApplyPayment(amount int64, now time.Time) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Code: "invalid_amount", Message: "amount must be positive"}
	}
	if amount > b.Balance {
		return &ValidationError{Field: "amount", Code: "amount_exceeds_balance", Message: "amount exceeds remaining balance"}
	}

	b.AmountPaid += amount
	b.recompute()
	if b.PaymentStatus == PaymentStatusPaid {
		settled := now.UTC()
		b.SettledAt = &settled
	}
	b.UpdatedAt = now.UTC()
	return nil
}

// recompute restores the Balance/AmountPaid/PaymentStatus coupling.
func (b *Bill) recompute() {
	b.Balance = b.TotalAmount - b.AmountPaid
	switch {
	case b.AmountPaid == b.TotalAmount:
		b.PaymentStatus = PaymentStatusPaid
	case b.AmountPaid > 0:
		b.PaymentStatus = PaymentStatusPartial
	}
}
