package gateway

import (
	"context"
	"time"

	"github.com/mattgold/scoutline/internal/logger"
)

// Gateway is the single path for every outbound call to the external
// catalog/pricing/fee/history sources. Each call runs through the response
// cache first (a hit bypasses the limiter), then the per-capability token
// bucket, then a bounded retry loop around transient failures.
type Gateway struct {
	client   SourceClient
	policies map[Capability]Policy
	limiters *limiterSet
	cache    *responseCache
	retry    RetryPolicy
	log      *logger.Logger
}

// Config holds gateway construction options.
type Config struct {
	Policies map[Capability]Policy
	Retry    RetryPolicy
}

// New creates a Gateway around a source client.
// Parameters:
//   - client: raw transport to the external sources.
//   - cfg: policies and retry bounds; nil uses defaults.
//   - log: logger instance.
// Returns:
//   - *Gateway: initialized gateway.
func New(client SourceClient, cfg *Config, log *logger.Logger) *Gateway {
	policies := DefaultPolicies()
	retry := DefaultRetryPolicy()
	if cfg != nil {
		if cfg.Policies != nil {
			policies = cfg.Policies
		}
		if cfg.Retry.MaxAttempts > 0 {
			retry = cfg.Retry
		}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Gateway{
		client:   client,
		policies: policies,
		limiters: newLimiterSet(policies),
		cache:    newResponseCache(),
		retry:    retry,
		log:      log,
	}
}

// policy returns the policy for a capability, zero value if unconfigured.
func (g *Gateway) policy(c Capability) Policy {
	return g.policies[c]
}

// call runs the cache / limiter / retry pipeline around one upstream fetch.
// The fetch closure must be idempotent; it may run up to MaxAttempts times.
func call[T any](ctx context.Context, g *Gateway, req Request, fetch func(context.Context) (*T, error)) (*T, error) {
	key := req.CacheKey()
	if v, ok := g.cache.Get(key); ok {
		if payload, ok := v.(*T); ok {
			return payload, nil
		}
	}

	if err := g.limiters.Wait(ctx, req.Capability()); err != nil {
		return nil, err
	}

	start := time.Now()
	var payload *T
	err := withRetry(ctx, g.retry, func() error {
		p, ferr := fetch(ctx)
		if ferr != nil {
			return ferr
		}
		payload = p
		return nil
	})
	if err != nil {
		g.log.WithError(err).WithFields(logger.Fields{
			logger.FieldCapability: string(req.Capability()),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).Warn("Upstream call failed")
		return nil, err
	}

	g.cache.Put(key, payload, g.policy(req.Capability()).CacheTTL)
	return payload, nil
}

// Catalog resolves ASIN candidates for a UPC through the gateway pipeline.
func (g *Gateway) Catalog(ctx context.Context, req CatalogRequest) (*CatalogPayload, error) {
	return call(ctx, g, req, func(ctx context.Context) (*CatalogPayload, error) {
		return g.client.LookupCatalog(ctx, req)
	})
}

// Pricing fetches live pricing for an ASIN through the gateway pipeline.
func (g *Gateway) Pricing(ctx context.Context, req PricingRequest) (*PricingPayload, error) {
	return call(ctx, g, req, func(ctx context.Context) (*PricingPayload, error) {
		return g.client.GetPricing(ctx, req)
	})
}

// Fees fetches a fee estimate through the gateway pipeline.
func (g *Gateway) Fees(ctx context.Context, req FeesRequest) (*FeesPayload, error) {
	return call(ctx, g, req, func(ctx context.Context) (*FeesPayload, error) {
		return g.client.EstimateFees(ctx, req)
	})
}

// History fetches historical aggregates through the gateway pipeline.
func (g *Gateway) History(ctx context.Context, req HistoryRequest) (*HistoryPayload, error) {
	return call(ctx, g, req, func(ctx context.Context) (*HistoryPayload, error) {
		return g.client.GetHistory(ctx, req)
	})
}

// CacheSize returns the number of cached responses, for stats endpoints.
func (g *Gateway) CacheSize() int {
	return g.cache.Len()
}
