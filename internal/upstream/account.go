package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	connectiondomain "github.com/hydranet/aquabill/internal/connection/domain"
	"go.uber.org/zap"
)

type AccountClient struct {
	http *resty.Client
	log  *zap.Logger
}

func NewAccountClient(baseURL string, client *resty.Client, log *zap.Logger) *AccountClient {
	return &AccountClient{
		http: client.SetBaseURL(baseURL),
		log:  log.Named("upstream.account"),
	}
}

type connectionStateResponse struct {
	ConnectionID string `json:"connection_id"`
	State        string `json:"state"`
}

func (c *AccountClient) FetchConnectionState(ctx context.Context, connectionID string) (string, error) {
	var body connectionStateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("connection_id", connectionID).
		SetResult(&body).
		Get("/v1/connections/{connection_id}")
	if err != nil {
		return "", fmt.Errorf("account backend: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return body.State, nil
	case http.StatusNotFound:
		return "", connectiondomain.ErrNotFound
	default:
		c.log.Warn("account backend returned unexpected status",
			zap.String("connection_id", connectionID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return "", fmt.Errorf("account backend: unexpected status %d", resp.StatusCode())
	}
}
