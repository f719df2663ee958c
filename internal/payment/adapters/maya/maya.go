// Package maya implements checkout against the Maya payments API.
package maya

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	paymentdomain "github.com/hydranet/aquabill/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "maya"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetBasicAuth(apiKey, "")
	return &Adapter{http: client}, nil
}

type Adapter struct {
	http *resty.Client
}

func (a *Adapter) Provider() string { return "maya" }

type totalAmount struct {
	// Maya expects decimal currency units, not centavos.
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type checkoutRequest struct {
	TotalAmount            totalAmount `json:"totalAmount"`
	RequestReferenceNumber string      `json:"requestReferenceNumber"`
}

type checkoutResponse struct {
	CheckoutID    string `json:"checkoutId"`
	RedirectURL   string `json:"redirectUrl"`
	PaymentStatus string `json:"paymentStatus"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	var body checkoutResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(checkoutRequest{
			TotalAmount: totalAmount{
				Value:    float64(req.Amount) / 100,
				Currency: req.Currency,
			},
			RequestReferenceNumber: req.ReferenceID,
		}).
		SetResult(&body).
		Post("/checkout/v1/checkouts")
	if err != nil {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "maya", Reason: "create checkout", Err: err,
		}
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "maya",
			Reason:   "unexpected status " + resp.Status(),
		}
	}
	if body.CheckoutID == "" {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "maya", Reason: "missing checkout id",
		}
	}

	return paymentdomain.CheckoutSession{
		ExternalReference: body.CheckoutID,
		CheckoutURL:       body.RedirectURL,
		Status:            mapStatus(body.PaymentStatus),
	}, nil
}

type statusResponse struct {
	PaymentStatus string `json:"paymentStatus"`
}

func (a *Adapter) GetStatus(ctx context.Context, externalReference string) (paymentdomain.GatewayStatus, error) {
	var body statusResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetPathParam("checkout_id", externalReference).
		SetResult(&body).
		Get("/checkout/v1/checkouts/{checkout_id}")
	if err != nil {
		return paymentdomain.GatewayPending, &paymentdomain.GatewayError{
			Provider: "maya", Reason: "get status", Err: err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return paymentdomain.GatewayPending, &paymentdomain.GatewayError{
			Provider: "maya",
			Reason:   "unexpected status " + resp.Status(),
		}
	}
	return mapStatus(body.PaymentStatus), nil
}

func mapStatus(raw string) paymentdomain.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAYMENT_SUCCESS", "COMPLETED", "SUCCESS":
		return paymentdomain.GatewaySuccess
	case "PAYMENT_FAILED", "PAYMENT_EXPIRED", "PAYMENT_CANCELLED", "FAILED":
		return paymentdomain.GatewayFailure
	default:
		return paymentdomain.GatewayPending
	}
}
