package service

import (
	"context"
	"fmt"

	"github.com/mattgold/scoutline/internal/gateway"
	"github.com/mattgold/scoutline/internal/logger"
)

// Enrichment is the market data gathered for one resolved identifier.
type Enrichment struct {
	SellPrice   float64
	FeesTotal   float64
	SellerCount int
	SalesRank   int
}

// Enricher gathers the market data the classifier needs for one ASIN.
type Enricher interface {
	Enrich(ctx context.Context, marketplace, asin string) (*Enrichment, error)
}

// GatewayEnricher enriches through the rate-limited gateway: live pricing,
// then a fee estimate at that price, then historical rank. Pricing and fees
// are required; history is best effort.
type GatewayEnricher struct {
	gw  *gateway.Gateway
	log *logger.Logger
}

// NewGatewayEnricher creates a GatewayEnricher.
func NewGatewayEnricher(gw *gateway.Gateway, log *logger.Logger) *GatewayEnricher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &GatewayEnricher{gw: gw, log: log}
}

// Enrich fetches pricing, fees, and history for an ASIN.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - marketplace: marketplace the job targets.
//   - asin: resolved catalog identifier.
// Returns:
//   - *Enrichment: sell price, total fees, and risk signals.
//   - error: non-nil when pricing or fees cannot be fetched.
func (e *GatewayEnricher) Enrich(ctx context.Context, marketplace, asin string) (*Enrichment, error) {
	pricing, err := e.gw.Pricing(ctx, gateway.PricingRequest{Marketplace: marketplace, ASIN: asin})
	if err != nil {
		return nil, fmt.Errorf("pricing for %s: %w", asin, err)
	}
	price := pricing.BestPrice()

	fees, err := e.gw.Fees(ctx, gateway.FeesRequest{Marketplace: marketplace, ASIN: asin, Price: price})
	if err != nil {
		return nil, fmt.Errorf("fee estimate for %s: %w", asin, err)
	}

	enr := &Enrichment{
		SellPrice:   price,
		FeesTotal:   fees.TotalFees,
		SellerCount: pricing.SellerCount,
	}

	// Rank history only sharpens the risk signal; a failure here must not
	// fail the row.
	history, err := e.gw.History(ctx, gateway.HistoryRequest{Marketplace: marketplace, ASIN: asin})
	if err != nil {
		e.log.WithError(err).WithField("asin", asin).Debug("History lookup failed, continuing without rank")
	} else {
		enr.SalesRank = history.AvgSalesRank
	}

	return enr, nil
}
