// Package upstream holds the HTTP clients for the systems of record the
// engine mirrors: the billing backend and account management.
package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	billdomain "github.com/hydranet/aquabill/internal/bill/domain"
	"go.uber.org/zap"
)

type BillingClient struct {
	http *resty.Client
	log  *zap.Logger
}

func NewBillingClient(baseURL string, client *resty.Client, log *zap.Logger) *BillingClient {
	return &BillingClient{
		http: client.SetBaseURL(baseURL),
		log:  log.Named("upstream.billing"),
	}
}

type billListResponse struct {
	Bills []billdomain.RawBill `json:"bills"`
}

// FetchBills returns the raw bill records for one connection. The payload is
// passed through untouched; normalization happens in the bill service.
func (c *BillingClient) FetchBills(ctx context.Context, connectionID string) ([]billdomain.RawBill, error) {
	var body billListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("connection_id", connectionID).
		SetResult(&body).
		Get("/v1/connections/{connection_id}/bills")
	if err != nil {
		return nil, fmt.Errorf("billing backend: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return body.Bills, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		c.log.Warn("billing backend returned unexpected status",
			zap.String("connection_id", connectionID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("billing backend: unexpected status %d", resp.StatusCode())
	}
}
