package domain

import "context"

// GatewayStatus is the canonical settlement status across gateways.
type GatewayStatus string

const (
	GatewayPending GatewayStatus = "pending"
	GatewaySuccess GatewayStatus = "success"
	GatewayFailure GatewayStatus = "failure"
)

// CheckoutRequest asks a gateway to open a checkout session.
type CheckoutRequest struct {
	ReferenceID  string
	ConnectionID string
	BillID       string
	Amount       int64
	Currency     string
	Description  string
}

// CheckoutSession is the gateway's answer. A Status of GatewaySuccess means
// the gateway settled synchronously and no redirect is needed.
type CheckoutSession struct {
	ExternalReference string
	CheckoutURL       string
	Status            GatewayStatus
}

// GatewayAdapter talks to one wallet or e-money provider.
type GatewayAdapter interface {
	Provider() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// GetStatus polls the gateway for the settlement outcome of an earlier
	// checkout session.
	GetStatus(ctx context.Context, externalReference string) (GatewayStatus, error)
}

// AdapterConfig carries per-provider credentials.
type AdapterConfig struct {
	BaseURL string
	APIKey  string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}
