// Package gcash implements checkout against the GCash merchant API.
package gcash

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
	return "gcash"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey)
	return &Adapter{http: client}, nil
}

type Adapter struct {
	http *resty.Client
}

func (a *Adapter) Provider() string { return "gcash" }

type checkoutRequest struct {
	RequestReferenceNumber string `json:"requestReferenceNumber"`
	Amount                 int64  `json:"amount"`
	Currency               string `json:"currency"`
	Description            string `json:"description,omitempty"`
}

type checkoutResponse struct {
	CheckoutID  string `json:"checkoutId"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	var body checkoutResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(checkoutRequest{
			RequestReferenceNumber: req.ReferenceID,
			Amount:                 req.Amount,
			Currency:               req.Currency,
			Description:            req.Description,
		}).
		SetResult(&body).
		Post("/v1/checkouts")
	if err != nil {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "gcash", Reason: "create checkout", Err: err,
		}
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "gcash",
			Reason:   "unexpected status " + resp.Status(),
		}
	}
	if body.CheckoutID == "" {
		return paymentdomain.CheckoutSession{}, &paymentdomain.GatewayError{
			Provider: "gcash", Reason: "missing checkout id",
		}
	}

	return paymentdomain.CheckoutSession{
		ExternalReference: body.CheckoutID,
		CheckoutURL:       body.RedirectURL,
		Status:            mapStatus(body.Status),
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

func (a *Adapter) GetStatus(ctx context.Context, externalReference string) (paymentdomain.GatewayStatus, error) {
	var body statusResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetPathParam("checkout_id", externalReference).
		SetResult(&body).
		Get("/v1/checkouts/{checkout_id}")
	if err != nil {
		return paymentdomain.GatewayPending, &paymentdomain.GatewayError{
			Provider: "gcash", Reason: "get status", Err: err,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return paymentdomain.GatewayPending, &paymentdomain.GatewayError{
			Provider: "gcash",
			Reason:   "unexpected status " + resp.Status(),
		}
	}
	return mapStatus(body.Status), nil
}

func mapStatus(raw string) paymentdomain.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAYMENT_SUCCESS", "COMPLETED", "SUCCESS":
		return paymentdomain.GatewaySuccess
	case "PAYMENT_FAILED", "PAYMENT_EXPIRED", "FAILED", "VOIDED":
		return paymentdomain.GatewayFailure
	default:
		return paymentdomain.GatewayPending
	}
}
