package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
	reconciledomain "github.com/hydranet/aquabill/internal/reconcile/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if ve, ok := billdomain.AsValidation(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: ve.Field, Code: ve.Code, Message: ve.Message},
			},
		}
	}

	if me, ok := billdomain.AsMalformed(err); ok {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "malformed_bill",
			Message: me.Error(),
		}
	}

	if ge, ok := paymentdomain.AsGatewayError(err); ok {
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway error: " + ge.Provider,
		}
	}

	if te, ok := reconciledomain.AsTimeout(err); ok {
		return http.StatusGone, errorPayload{
			Type:    "reconciliation_timeout",
			Message: te.Error(),
		}
	}

	switch {
	case errors.Is(err, billdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNoBillFound),
		errors.Is(err, connectiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, reconciledomain.ErrPendingExists):
		return http.StatusConflict, errorPayload{
			Type:    "pending_payment_exists",
			Message: "a payment is already pending for this connection",
		}
	case errors.Is(err, paymentdomain.ErrPaymentBlocked):
		return http.StatusConflict, errorPayload{
			Type:    "payment_blocked",
			Message: "payments are not accepted in the current connection state",
		}
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "provider", Code: "provider_not_found", Message: "unknown payment provider"},
			},
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog buckets errors for the request log without leaking
// message contents into metrics labels.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if ve, ok := billdomain.AsValidation(err); ok {
		return "validation_error", ve.Code
	}
	if _, ok := billdomain.AsMalformed(err); ok {
		return "malformed_bill", "malformed_bill"
	}
	if _, ok := paymentdomain.AsGatewayError(err); ok {
		return "gateway_error", "gateway_error"
	}
	if _, ok := reconciledomain.AsTimeout(err); ok {
		return "reconciliation_timeout", "reconciliation_timeout"
	}
	switch {
	case errors.Is(err, billdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNoBillFound),
		errors.Is(err, connectiondomain.ErrNotFound):
		return "not_found", "not_found"
	case errors.Is(err, reconciledomain.ErrPendingExists):
		return "conflict", "pending_payment_exists"
	case errors.Is(err, paymentdomain.ErrPaymentBlocked):
		return "conflict", "payment_blocked"
	default:
		return "internal_error", "internal_error"
	}
}
