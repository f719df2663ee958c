// Package workflow models the payment wizard as an explicit state machine.
// The HTTP layer and any future UI drive the same transitions; invalid moves
// fail loudly instead of silently recovering.
package workflow

import (
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
)

type State string

const (
	StateReviewingBill   State = "reviewing_bill"
	StateSelectingType   State = "selecting_type"
	StateSelectingMethod State = "selecting_method"
	StateAwaitingGateway State = "awaiting_gateway"
	StateConfirmed       State = "confirmed"
)

// Only a confirmed payment is terminal. Submission failures drop the wizard
// back to method selection so the user can retry deliberately; retries are
// never automatic.
func (s State) Terminal() bool {
	return s == StateConfirmed
}

// Wizard walks one payment from bill review to a settled or failed outcome.
type Wizard struct {
	state State

	billID           string
	connectionID     string
	balance          int64
	minPartialAmount int64

	paymentType paymentdomain.PaymentType
	amount      int64
	provider    string

	failReason string
}

// Start opens the wizard on one bill. Settled bills are not payable.
func Start(bill billdomain.Bill, minPartialAmount int64) (*Wizard, error) {
	if !bill.Unpaid() || bill.Balance <= 0 {
		return nil, &billdomain.ValidationError{
			Field:   "bill_id",
			Code:    "bill_not_payable",
			Message: "bill has no outstanding balance",
		}
	}
	return &Wizard{
		state:            StateReviewingBill,
		billID:           bill.ID,
		connectionID:     bill.ConnectionID,
		balance:          bill.Balance,
		minPartialAmount: minPartialAmount,
	}, nil
}

func (w *Wizard) State() State                    { return w.state }
func (w *Wizard) BillID() string                  { return w.billID }
func (w *Wizard) Amount() int64                   { return w.amount }
func (w *Wizard) Provider() string                { return w.provider }
func (w *Wizard) Type() paymentdomain.PaymentType { return w.paymentType }
func (w *Wizard) FailReason() string              { return w.failReason }

// Proceed moves from bill review to payment type selection.
func (w *Wizard) Proceed() error {
	if w.state != StateReviewingBill {
		return w.invalidTransition("proceed")
	}
	w.state = StateSelectingType
	return nil
}

// ChooseType fixes the payment type and amount. Full payments always cover
// the exact outstanding balance; partial payments are bounded below by the
// policy minimum and above by the balance.
func (w *Wizard) ChooseType(t paymentdomain.PaymentType, amount int64) error {
	if w.state != StateSelectingType {
		return w.invalidTransition("choose_type")
	}

	switch t {
	case paymentdomain.PaymentTypeFull:
		w.amount = w.balance
	case paymentdomain.PaymentTypePartial:
		if amount < w.minPartialAmount {
			return &billdomain.ValidationError{
				Field:   "amount",
				Code:    "below_minimum",
				Message: "partial payment is below the minimum amount",
			}
		}
		if amount > w.balance {
			return &billdomain.ValidationError{
				Field:   "amount",
				Code:    "amount_exceeds_balance",
				Message: "partial payment exceeds the outstanding balance",
			}
		}
		w.amount = amount
	default:
		return &billdomain.ValidationError{
			Field:   "type",
			Code:    "invalid_payment_type",
			Message: "payment type must be full or partial",
		}
	}

	w.paymentType = t
	w.state = StateSelectingMethod
	return nil
}

// ChooseMethod fixes the gateway provider and arms the wizard for submission.
func (w *Wizard) ChooseMethod(provider string) error {
	if w.state != StateSelectingMethod {
		return w.invalidTransition("choose_method")
	}
	if provider == "" {
		return &billdomain.ValidationError{
			Field:   "provider",
			Code:    "provider_required",
			Message: "a payment method must be selected",
		}
	}
	w.provider = provider
	w.state = StateAwaitingGateway
	return nil
}

// Back steps one screen backwards, discarding the selection made there.
func (w *Wizard) Back() error {
	switch w.state {
	case StateSelectingType:
		w.paymentType = ""
		w.amount = 0
		w.state = StateReviewingBill
	case StateSelectingMethod:
		w.provider = ""
		w.state = StateSelectingType
	case StateAwaitingGateway:
		w.state = StateSelectingMethod
	default:
		return w.invalidTransition("back")
	}
	return nil
}

// Confirm records a settled gateway outcome.
func (w *Wizard) Confirm() error {
	if w.state != StateAwaitingGateway {
		return w.invalidTransition("confirm")
	}
	w.state = StateConfirmed
	return nil
}

// Fail records a gateway or submission failure and returns the wizard to
// method selection. The selections survive; only an explicit user action may
// resubmit, so a flaky gateway never triggers a duplicate charge.
func (w *Wizard) Fail(reason string) error {
	if w.state != StateAwaitingGateway {
		return w.invalidTransition("fail")
	}
	w.failReason = reason
	w.state = StateSelectingMethod
	return nil
}

// Intent materializes the armed wizard into a payment intent.
func (w *Wizard) Intent() (paymentdomain.PaymentIntent, error) {
	if w.state != StateAwaitingGateway {
		return paymentdomain.PaymentIntent{}, w.invalidTransition("intent")
	}
	return paymentdomain.PaymentIntent{
		ConnectionID: w.connectionID,
		BillID:       w.billID,
		Type:         w.paymentType,
		Amount:       w.amount,
		Provider:     w.provider,
	}, nil
}

func (w *Wizard) invalidTransition(action string) error {
	return &billdomain.ValidationError{
		Field:   "state",
		Code:    "invalid_transition",
		Message: "cannot " + action + " from state " + string(w.state),
	}
}
