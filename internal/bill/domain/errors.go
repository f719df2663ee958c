package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("bill_not_found")

// MalformedBillError marks a raw upstream record the normalizer refused.
// It is recovered per record: one bad bill never blocks the whole batch.
type MalformedBillError struct {
	BillID string
	Field  string
	Reason string
}

func (e *MalformedBillError) Error() string {
	return fmt.Sprintf("malformed bill %q: %s (%s)", e.BillID, e.Field, e.Reason)
}

// ValidationError marks bad user input on the payment path. It is surfaced
// inline and blocks the workflow transition.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Code
}

func AsMalformed(err error) (*MalformedBillError, bool) {
	var malformed *MalformedBillError
	if errors.As(err, &malformed) {
		return malformed, true
	}
	return nil, false
}

func AsValidation(err error) (*ValidationError, bool) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}
