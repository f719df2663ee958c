package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentType selects how much of the balance a payment covers.
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "full"
	PaymentTypePartial PaymentType = "partial"
)

// AttemptStatus tracks one payment attempt through the gateway.
type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptPending   AttemptStatus = "pending"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// PaymentAttempt is the audit record for one gateway interaction.
type PaymentAttempt struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	ConnectionID      string         `json:"connection_id" gorm:"type:text;not null;index"`
	BillID            string         `json:"bill_id" gorm:"type:text;not null;index"`
	Provider          string         `json:"provider" gorm:"type:text;not null"`
	Type              PaymentType    `json:"type" gorm:"type:text;not null"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:text;not null"`
	Status            AttemptStatus  `json:"status" gorm:"type:text;not null"`
	ExternalReference string         `json:"external_reference" gorm:"type:text"`
	CheckoutURL       string         `json:"checkout_url" gorm:"type:text"`
	Payload           datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

// PaymentIntent is a validated request to pay one bill.
type PaymentIntent struct {
	ConnectionID string      `json:"connection_id"`
	BillID       string      `json:"bill_id"`
	Type         PaymentType `json:"type"`
	// Amount is required for partial payments and ignored for full ones,
	// where the bill's balance is authoritative.
	Amount   int64  `json:"amount,omitempty"`
	Provider string `json:"provider"`
	// Supersede clears an existing pending marker instead of refusing.
	Supersede bool `json:"supersede,omitempty"`
}

// StartPaymentResult reports how an initiated payment left the system.
type StartPaymentResult struct {
	Attempt PaymentAttempt `json:"attempt"`
	// CheckoutURL is set when the payer must finish at the gateway.
	CheckoutURL string `json:"checkout_url,omitempty"`
	// Settled is true when the gateway confirmed synchronously and the
	// bill was already updated.
	Settled    bool  `json:"settled"`
	NewBalance int64 `json:"new_balance"`
}

var (
	ErrNoBillFound      = errors.New("no_bill_found")
	ErrPaymentBlocked   = errors.New("payment_blocked")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
)

// GatewayError wraps a failure talking to an external payment gateway.
type GatewayError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Provider, e.Reason)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

type Service interface {
	// StartPayment validates the intent, enforces single-pending-payment
	// per connection, and initiates checkout at the selected gateway.
	StartPayment(ctx context.Context, intent PaymentIntent) (StartPaymentResult, error)
	// ListAttempts returns the attempt history for one connection, newest
	// first.
	ListAttempts(ctx context.Context, connectionID string) ([]PaymentAttempt, error)
}
