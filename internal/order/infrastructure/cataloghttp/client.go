// Package cataloghttp reads product snapshots from the inventory service's
// catalog endpoint.
package cataloghttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/orderflow/orderflow/internal/order/application"
)

type Client struct {
	baseURL string
	hc      *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Product(ctx context.Context, id string) (application.CatalogProduct, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+id, nil)
	if err != nil {
		return application.CatalogProduct{}, false, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.hc.Do(req)
	if err != nil {
		return application.CatalogProduct{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			UnitPriceCents int64  `json:"unitPriceCents"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return application.CatalogProduct{}, false, err
		}
		return application.CatalogProduct{ID: body.ID, Name: body.Name, UnitPriceCents: body.UnitPriceCents}, true, nil
	case http.StatusNotFound:
		return application.CatalogProduct{}, false, nil
	default:
		return application.CatalogProduct{}, false, fmt.Errorf("catalog returned status %s", resp.Status)
	}
}
