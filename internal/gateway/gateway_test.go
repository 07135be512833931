package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClient is a scriptable SourceClient that counts upstream calls.
type fakeClient struct {
	catalogCalls int64
	pricingCalls int64
	feesCalls    int64
	historyCalls int64

	// failuresBeforeSuccess is decremented on each call; while positive the
	// call returns failErr.
	failuresBeforeSuccess int64
	failErr               error
}

func (f *fakeClient) fail() error {
	if atomic.AddInt64(&f.failuresBeforeSuccess, -1) >= 0 {
		return f.failErr
	}
	return nil
}

func (f *fakeClient) LookupCatalog(ctx context.Context, req CatalogRequest) (*CatalogPayload, error) {
	atomic.AddInt64(&f.catalogCalls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &CatalogPayload{Matches: []CatalogMatch{{ASIN: "B000TEST01", Title: "Widget"}}}, nil
}

func (f *fakeClient) GetPricing(ctx context.Context, req PricingRequest) (*PricingPayload, error) {
	atomic.AddInt64(&f.pricingCalls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &PricingPayload{BuyBoxPrice: 24.99, SellerCount: 4, InStock: true}, nil
}

func (f *fakeClient) EstimateFees(ctx context.Context, req FeesRequest) (*FeesPayload, error) {
	atomic.AddInt64(&f.feesCalls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &FeesPayload{ReferralFee: 3.75, FulfillmentFee: 3.22, TotalFees: 6.97}, nil
}

func (f *fakeClient) GetHistory(ctx context.Context, req HistoryRequest) (*HistoryPayload, error) {
	atomic.AddInt64(&f.historyCalls, 1)
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &HistoryPayload{AvgPrice90d: 25.10, AvgSalesRank: 12000}, nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestGatewayCachesResponses(t *testing.T) {
	client := &fakeClient{}
	g := New(client, &Config{Retry: fastRetry()}, nil)

	req := PricingRequest{Marketplace: "US", ASIN: "B000TEST01"}
	for i := 0; i < 3; i++ {
		if _, err := g.Pricing(context.Background(), req); err != nil {
			t.Fatalf("pricing call %d failed: %v", i, err)
		}
	}

	if n := atomic.LoadInt64(&client.pricingCalls); n != 1 {
		t.Errorf("upstream pricing calls = %d, want 1", n)
	}
}

func TestGatewayCacheExpiry(t *testing.T) {
	client := &fakeClient{}
	policies := DefaultPolicies()
	policies[CapabilityPricing] = Policy{RatePerSec: 100, Burst: 100, CacheTTL: time.Minute}
	g := New(client, &Config{Policies: policies, Retry: fastRetry()}, nil)

	current := time.Now()
	g.cache.now = func() time.Time { return current }

	req := PricingRequest{Marketplace: "US", ASIN: "B000TEST01"}
	if _, err := g.Pricing(context.Background(), req); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// Within TTL: served from cache.
	current = current.Add(30 * time.Second)
	if _, err := g.Pricing(context.Background(), req); err != nil {
		t.Fatalf("cached call failed: %v", err)
	}
	if n := atomic.LoadInt64(&client.pricingCalls); n != 1 {
		t.Fatalf("upstream calls before expiry = %d, want 1", n)
	}

	// Past TTL: refetched.
	current = current.Add(2 * time.Minute)
	if _, err := g.Pricing(context.Background(), req); err != nil {
		t.Fatalf("post-expiry call failed: %v", err)
	}
	if n := atomic.LoadInt64(&client.pricingCalls); n != 2 {
		t.Errorf("upstream calls after expiry = %d, want 2", n)
	}
}

func TestGatewayRetriesTransient(t *testing.T) {
	client := &fakeClient{failuresBeforeSuccess: 2, failErr: ErrThrottled}
	g := New(client, &Config{Retry: fastRetry()}, nil)

	if _, err := g.Catalog(context.Background(), CatalogRequest{Marketplace: "US", UPC: "012345678905"}); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if n := atomic.LoadInt64(&client.catalogCalls); n != 3 {
		t.Errorf("upstream calls = %d, want 3 (two throttles then success)", n)
	}
}

func TestGatewayExhaustsRetryBudget(t *testing.T) {
	client := &fakeClient{failuresBeforeSuccess: 100, failErr: ErrUnavailable}
	g := New(client, &Config{Retry: fastRetry()}, nil)

	_, err := g.Catalog(context.Background(), CatalogRequest{Marketplace: "US", UPC: "012345678905"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := atomic.LoadInt64(&client.catalogCalls); n != 3 {
		t.Errorf("upstream calls = %d, want 3 (bounded attempts)", n)
	}
}

func TestGatewayNoRetryOnPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", ErrNotFound},
		{"unauthorized", ErrUnauthorized},
		{"invalid request", ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{failuresBeforeSuccess: 100, failErr: tc.err}
			g := New(client, &Config{Retry: fastRetry()}, nil)

			_, err := g.Catalog(context.Background(), CatalogRequest{Marketplace: "US", UPC: "012345678905"})
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
			if n := atomic.LoadInt64(&client.catalogCalls); n != 1 {
				t.Errorf("upstream calls = %d, want 1 (no retry)", n)
			}
		})
	}
}

func TestCacheHitBypassesLimiter(t *testing.T) {
	client := &fakeClient{}
	policies := DefaultPolicies()
	// One token total; a second upstream call would block for an hour.
	policies[CapabilityPricing] = Policy{RatePerSec: 1.0 / 3600, Burst: 1, CacheTTL: time.Hour}
	g := New(client, &Config{Policies: policies, Retry: fastRetry()}, nil)

	req := PricingRequest{Marketplace: "US", ASIN: "B000TEST01"}
	if _, err := g.Pricing(context.Background(), req); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := g.Pricing(ctx, req); err != nil {
		t.Fatalf("cache hit should not wait on the limiter: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttled", ErrThrottled, true},
		{"unavailable", ErrUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"not found", ErrNotFound, false},
		{"unauthorized", ErrUnauthorized, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
