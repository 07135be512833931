package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mattgold/scoutline/internal/domain"
	"github.com/mattgold/scoutline/internal/gateway"
	"github.com/mattgold/scoutline/internal/logger"
)

// Store is the persistent, cross-tenant UPC resolution cache. Get returns
// (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, upc string) (*domain.UPCResolution, error)
	Put(ctx context.Context, entry *domain.UPCResolution) error
	Touch(ctx context.Context, upc string) error
}

// ChoiceStore is the tenant-scoped disambiguation override layer. Get
// returns (nil, nil) when the tenant has made no choice for the UPC.
type ChoiceStore interface {
	Get(ctx context.Context, tenantID, upc string) (*domain.TenantASINChoice, error)
	Put(ctx context.Context, choice *domain.TenantASINChoice) error
}

// CatalogClient is the slice of the gateway the resolver needs.
type CatalogClient interface {
	Catalog(ctx context.Context, req gateway.CatalogRequest) (*gateway.CatalogPayload, error)
}

// Config holds resolver construction options.
type Config struct {
	Marketplace   string
	MaxCandidates int // bound on stored ambiguous candidates
}

// Resolver answers UPC-to-ASIN lookups through two explicit layers: the
// tenant's remembered disambiguation choices first, then the shared global
// cache. On a global miss the external lookup is deduplicated per code, so
// any number of concurrent chunks and jobs asking about the same UPC produce
// at most one in-flight upstream call.
type Resolver struct {
	store         Store
	choices       ChoiceStore
	catalog       CatalogClient
	marketplace   string
	maxCandidates int
	group         singleflight.Group
	log           *logger.Logger
}

// New creates a Resolver.
// Parameters:
//   - store: global resolution cache.
//   - choices: tenant override store; may be nil when overrides are unused.
//   - catalog: gateway catalog capability.
//   - cfg: marketplace and candidate bound.
//   - log: logger instance.
// Returns:
//   - *Resolver: initialized resolver.
func New(store Store, choices ChoiceStore, catalog CatalogClient, cfg *Config, log *logger.Logger) *Resolver {
	marketplace := "US"
	maxCandidates := 10
	if cfg != nil {
		if cfg.Marketplace != "" {
			marketplace = cfg.Marketplace
		}
		if cfg.MaxCandidates > 0 {
			maxCandidates = cfg.MaxCandidates
		}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Resolver{
		store:         store,
		choices:       choices,
		catalog:       catalog,
		marketplace:   marketplace,
		maxCandidates: maxCandidates,
		log:           log,
	}
}

// Resolve maps a UPC to its catalog identifier. Cache hits return
// immediately and bump the lookup counter without blocking the caller.
// Negative (not_found) and ambiguous answers are cached with the same
// discipline as positive ones and are not re-queried.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: tenant asking; empty skips the override layer.
//   - upc: normalized universal product code.
// Returns:
//   - *domain.UPCResolution: resolution entry (status found/not_found/ambiguous).
//   - error: non-nil on storage failure or an unrecoverable upstream error.
func (r *Resolver) Resolve(ctx context.Context, tenantID, upc string) (*domain.UPCResolution, error) {
	// Layer 1: tenant's remembered disambiguation choice.
	if tenantID != "" && r.choices != nil {
		choice, err := r.choices.Get(ctx, tenantID, upc)
		if err != nil {
			return nil, fmt.Errorf("tenant choice lookup: %w", err)
		}
		if choice != nil {
			return &domain.UPCResolution{
				UPC:        upc,
				ASIN:       choice.ASIN,
				Status:     domain.ResolutionFound,
				Source:     "tenant_choice",
				Confidence: 1,
			}, nil
		}
	}

	// Layer 2: shared global cache.
	entry, err := r.store.Get(ctx, upc)
	if err != nil {
		return nil, fmt.Errorf("resolution cache lookup: %w", err)
	}
	if entry != nil && entry.Status != domain.ResolutionError {
		r.touchAsync(upc)
		return entry, nil
	}

	// Miss (or a stale error entry): at most one external lookup per code
	// across all callers, even across tenants.
	v, err, _ := r.group.Do(upc, func() (interface{}, error) {
		// A waiter that lost the race may arrive after the winner wrote the
		// entry; re-check before going upstream.
		if cached, cerr := r.store.Get(ctx, upc); cerr == nil && cached != nil && cached.Status != domain.ResolutionError {
			return cached, nil
		}
		return r.lookup(ctx, upc)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.UPCResolution), nil
}

// lookup issues the external catalog call and writes the outcome to the
// shared cache.
func (r *Resolver) lookup(ctx context.Context, upc string) (*domain.UPCResolution, error) {
	payload, err := r.catalog.Catalog(ctx, gateway.CatalogRequest{Marketplace: r.marketplace, UPC: upc})

	now := time.Now()
	entry := &domain.UPCResolution{
		UPC:         upc,
		Source:      "catalog_api",
		LookupCount: 1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	switch {
	case errors.Is(err, gateway.ErrNotFound):
		entry.Status = domain.ResolutionNotFound
	case err != nil:
		// Transient budget exhausted or a permanent upstream refusal. The
		// error entry is written for observability but treated as a cache
		// miss on later lookups, so the code can be retried.
		entry.Status = domain.ResolutionError
		if perr := r.store.Put(ctx, entry); perr != nil {
			r.log.WithError(perr).WithField(logger.FieldUPC, upc).Warn("Failed to record resolution error")
		}
		return nil, fmt.Errorf("catalog lookup for %s: %w", upc, err)
	case len(payload.Matches) == 0:
		entry.Status = domain.ResolutionNotFound
	case len(payload.Matches) == 1:
		m := payload.Matches[0]
		entry.Status = domain.ResolutionFound
		entry.ASIN = m.ASIN
		entry.Confidence = m.Confidence
		entry.Candidates = domain.CandidateList{toCandidate(m)}
	default:
		entry.Status = domain.ResolutionAmbiguous
		limit := len(payload.Matches)
		if limit > r.maxCandidates {
			limit = r.maxCandidates
		}
		candidates := make(domain.CandidateList, 0, limit)
		for _, m := range payload.Matches[:limit] {
			candidates = append(candidates, toCandidate(m))
		}
		entry.Candidates = candidates
	}

	if verr := entry.Validate(); verr != nil {
		return nil, verr
	}
	if err := r.store.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("resolution cache write: %w", err)
	}
	return entry, nil
}

// RememberChoice records a tenant's disambiguation of an ambiguous UPC. The
// choice is tenant-scoped and consulted before the shared cache.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: tenant making the choice.
//   - upc: UPC being disambiguated.
//   - asin: chosen catalog identifier.
// Returns:
//   - error: non-nil if the choice cannot be persisted.
func (r *Resolver) RememberChoice(ctx context.Context, tenantID, upc, asin string) error {
	if r.choices == nil {
		return errors.New("tenant choice store not configured")
	}
	if tenantID == "" || upc == "" || asin == "" {
		return errors.New("tenant, upc, and asin are all required")
	}
	return r.choices.Put(ctx, &domain.TenantASINChoice{
		TenantID: tenantID,
		UPC:      upc,
		ASIN:     asin,
		ChosenAt: time.Now(),
	})
}

// touchAsync bumps the lookup counter without blocking the read path.
func (r *Resolver) touchAsync(upc string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.Touch(ctx, upc); err != nil {
			r.log.WithError(err).WithField(logger.FieldUPC, upc).Debug("Failed to touch resolution entry")
		}
	}()
}

func toCandidate(m gateway.CatalogMatch) domain.ASINCandidate {
	return domain.ASINCandidate{
		ASIN:         m.ASIN,
		Title:        m.Title,
		Brand:        m.Brand,
		ThumbnailURL: m.ThumbnailURL,
		Confidence:   m.Confidence,
	}
}
