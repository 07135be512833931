package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SourceClient is the raw transport to the external catalog/pricing/fee/
// history sources. The Gateway wraps it with caching, rate limiting, and
// retry; nothing else should call it directly.
type SourceClient interface {
	LookupCatalog(ctx context.Context, req CatalogRequest) (*CatalogPayload, error)
	GetPricing(ctx context.Context, req PricingRequest) (*PricingPayload, error)
	EstimateFees(ctx context.Context, req FeesRequest) (*FeesPayload, error)
	GetHistory(ctx context.Context, req HistoryRequest) (*HistoryPayload, error)
}

// ClientConfig holds configuration for the HTTP source client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// httpClient implements SourceClient against an HTTP API.
type httpClient struct {
	client *resty.Client
}

// NewHTTPClient creates a SourceClient backed by resty.
// Parameters:
//   - cfg: base URL, API key, and request timeout.
// Returns:
//   - SourceClient: initialized client.
func NewHTTPClient(cfg *ClientConfig) SourceClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &httpClient{client: client}
}

// classifyStatus maps an upstream HTTP status to the gateway error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrThrottled
	case status >= 500:
		return ErrUnavailable
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= 400:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// LookupCatalog queries the catalog source for ASIN candidates matching a UPC.
func (c *httpClient) LookupCatalog(ctx context.Context, req CatalogRequest) (*CatalogPayload, error) {
	var payload CatalogPayload
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"marketplace": req.Marketplace,
			"upc":         req.UPC,
		}).
		SetResult(&payload).
		Get("/catalog/v1/items")
	if err != nil {
		return nil, fmt.Errorf("catalog lookup for %s: %w", req.UPC, err)
	}
	if cerr := classifyStatus(resp.StatusCode()); cerr != nil {
		return nil, fmt.Errorf("catalog lookup for %s: %w", req.UPC, cerr)
	}
	return &payload, nil
}

// GetPricing fetches live pricing and competition for an ASIN.
func (c *httpClient) GetPricing(ctx context.Context, req PricingRequest) (*PricingPayload, error) {
	var payload PricingPayload
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("marketplace", req.Marketplace).
		SetResult(&payload).
		Get("/pricing/v1/items/" + req.ASIN)
	if err != nil {
		return nil, fmt.Errorf("pricing for %s: %w", req.ASIN, err)
	}
	if cerr := classifyStatus(resp.StatusCode()); cerr != nil {
		return nil, fmt.Errorf("pricing for %s: %w", req.ASIN, cerr)
	}
	return &payload, nil
}

// EstimateFees asks the fee source for a sell-price-specific estimate.
func (c *httpClient) EstimateFees(ctx context.Context, req FeesRequest) (*FeesPayload, error) {
	var payload FeesPayload
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"marketplace": req.Marketplace,
			"price":       req.Price,
		}).
		SetResult(&payload).
		Post("/fees/v1/items/" + req.ASIN + "/estimate")
	if err != nil {
		return nil, fmt.Errorf("fee estimate for %s: %w", req.ASIN, err)
	}
	if cerr := classifyStatus(resp.StatusCode()); cerr != nil {
		return nil, fmt.Errorf("fee estimate for %s: %w", req.ASIN, cerr)
	}
	return &payload, nil
}

// GetHistory fetches historical price/rank aggregates for an ASIN.
func (c *httpClient) GetHistory(ctx context.Context, req HistoryRequest) (*HistoryPayload, error) {
	var payload HistoryPayload
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("marketplace", req.Marketplace).
		SetResult(&payload).
		Get("/history/v1/items/" + req.ASIN)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", req.ASIN, err)
	}
	if cerr := classifyStatus(resp.StatusCode()); cerr != nil {
		return nil, fmt.Errorf("history for %s: %w", req.ASIN, cerr)
	}
	return &payload, nil
}
