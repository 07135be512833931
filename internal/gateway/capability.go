package gateway

import (
	"fmt"
	"time"
)

// Capability selects both the external source endpoint and the rate budget /
// cache policy applied to a call.
type Capability string

const (
	CapabilityCatalog Capability = "catalog"
	CapabilityPricing Capability = "pricing"
	CapabilityFees    Capability = "fees"
	CapabilityHistory Capability = "history"
)

// Policy is the static rate and cache configuration for one capability.
// Rates are not user-tunable at runtime.
type Policy struct {
	RatePerSec float64
	Burst      int
	CacheTTL   time.Duration
}

// DefaultPolicies returns the per-capability budgets. TTLs reflect how fast
// each fact changes in the real world: catalog identity is stable, live
// pricing is not.
// Parameters: none.
// Returns:
//   - map[Capability]Policy: policy table keyed by capability.
func DefaultPolicies() map[Capability]Policy {
	return map[Capability]Policy{
		CapabilityCatalog: {RatePerSec: 5, Burst: 10, CacheTTL: 24 * time.Hour},
		CapabilityPricing: {RatePerSec: 10, Burst: 20, CacheTTL: 15 * time.Minute},
		CapabilityFees:    {RatePerSec: 5, Burst: 10, CacheTTL: 6 * time.Hour},
		CapabilityHistory: {RatePerSec: 2, Burst: 5, CacheTTL: 1 * time.Hour},
	}
}

// Request is implemented by the per-capability request variants. Keeping one
// small struct per capability lets call sites match exhaustively instead of
// probing optional fields of an untyped document.
type Request interface {
	Capability() Capability
	CacheKey() string
}

// CatalogRequest looks up the ASIN candidates for a UPC.
type CatalogRequest struct {
	Marketplace string
	UPC         string
}

// Capability returns CapabilityCatalog.
func (CatalogRequest) Capability() Capability { return CapabilityCatalog }

// CacheKey returns the response-cache key for this request.
func (r CatalogRequest) CacheKey() string {
	return fmt.Sprintf("catalog:%s:%s", r.Marketplace, r.UPC)
}

// PricingRequest fetches live pricing and competition for an ASIN.
type PricingRequest struct {
	Marketplace string
	ASIN        string
}

// Capability returns CapabilityPricing.
func (PricingRequest) Capability() Capability { return CapabilityPricing }

// CacheKey returns the response-cache key for this request.
func (r PricingRequest) CacheKey() string {
	return fmt.Sprintf("pricing:%s:%s", r.Marketplace, r.ASIN)
}

// FeesRequest estimates marketplace fees for selling an ASIN at a price.
// The price is part of the cache key: fees depend on it.
type FeesRequest struct {
	Marketplace string
	ASIN        string
	Price       float64
}

// Capability returns CapabilityFees.
func (FeesRequest) Capability() Capability { return CapabilityFees }

// CacheKey returns the response-cache key for this request.
func (r FeesRequest) CacheKey() string {
	return fmt.Sprintf("fees:%s:%s:%.2f", r.Marketplace, r.ASIN, r.Price)
}

// HistoryRequest fetches historical price/rank aggregates for an ASIN.
type HistoryRequest struct {
	Marketplace string
	ASIN        string
}

// Capability returns CapabilityHistory.
func (HistoryRequest) Capability() Capability { return CapabilityHistory }

// CacheKey returns the response-cache key for this request.
func (r HistoryRequest) CacheKey() string {
	return fmt.Sprintf("history:%s:%s", r.Marketplace, r.ASIN)
}

// CatalogMatch is one candidate catalog item for a UPC.
type CatalogMatch struct {
	ASIN         string  `json:"asin"`
	Title        string  `json:"title"`
	Brand        string  `json:"brand,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// CatalogPayload is the normalized catalog-lookup response.
type CatalogPayload struct {
	Matches []CatalogMatch `json:"matches"`
}

// PricingPayload is the normalized live-pricing response.
type PricingPayload struct {
	BuyBoxPrice float64 `json:"buy_box_price"`
	LowestPrice float64 `json:"lowest_price"`
	SellerCount int     `json:"seller_count"`
	InStock     bool    `json:"in_stock"`
}

// BestPrice returns the price enrichment should analyze against: the buy box
// when one exists, otherwise the lowest offer.
func (p *PricingPayload) BestPrice() float64 {
	if p.BuyBoxPrice > 0 {
		return p.BuyBoxPrice
	}
	return p.LowestPrice
}

// FeesPayload is the normalized fee-estimate response.
type FeesPayload struct {
	ReferralFee    float64 `json:"referral_fee"`
	FulfillmentFee float64 `json:"fulfillment_fee"`
	TotalFees      float64 `json:"total_fees"`
}

// HistoryPayload is the normalized historical-aggregate response.
type HistoryPayload struct {
	AvgPrice90d   float64 `json:"avg_price_90d"`
	AvgSalesRank  int     `json:"avg_sales_rank"`
	RankDrops90d  int     `json:"rank_drops_90d"`
	OffersTrend3m string  `json:"offers_trend_3m,omitempty"`
}
