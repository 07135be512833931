package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattgold/scoutline/internal/domain"
	"github.com/mattgold/scoutline/internal/gateway"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]*domain.UPCResolution
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*domain.UPCResolution)}
}

func (s *memStore) Get(ctx context.Context, upc string) (*domain.UPCResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[upc]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) Put(ctx context.Context, entry *domain.UPCResolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.UPC] = &cp
	return nil
}

func (s *memStore) Touch(ctx context.Context, upc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[upc]; ok {
		e.LookupCount++
		e.LastSeenAt = time.Now()
	}
	return nil
}

func (s *memStore) lookupCount(upc string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[upc]; ok {
		return e.LookupCount
	}
	return 0
}

// memChoices is an in-memory ChoiceStore for tests.
type memChoices struct {
	mu      sync.Mutex
	choices map[string]*domain.TenantASINChoice
}

func newMemChoices() *memChoices {
	return &memChoices{choices: make(map[string]*domain.TenantASINChoice)}
}

func (s *memChoices) Get(ctx context.Context, tenantID, upc string) (*domain.TenantASINChoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.choices[tenantID+"|"+upc]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (s *memChoices) Put(ctx context.Context, choice *domain.TenantASINChoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.choices[choice.TenantID+"|"+choice.UPC] = choice
	return nil
}

// fakeCatalog is a scriptable CatalogClient counting external lookups.
type fakeCatalog struct {
	calls   int64
	delay   time.Duration
	matches []gateway.CatalogMatch
	err     error
	errOnce int64 // fail this many calls before succeeding
}

func (f *fakeCatalog) Catalog(ctx context.Context, req gateway.CatalogRequest) (*gateway.CatalogPayload, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		if atomic.AddInt64(&f.errOnce, -1) >= 0 {
			return nil, f.err
		}
	}
	return &gateway.CatalogPayload{Matches: f.matches}, nil
}

func singleMatch() []gateway.CatalogMatch {
	return []gateway.CatalogMatch{{ASIN: "B0EXAMPLE1", Title: "Widget 12-pack", Confidence: 0.97}}
}

func TestResolveConcurrentSingleFlight(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{delay: 20 * time.Millisecond, matches: singleMatch()}
	r := New(store, nil, catalog, nil, nil)

	const callers = 25
	var wg sync.WaitGroup
	results := make([]*domain.UPCResolution, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), "tenant-a", "036000291452")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].ASIN != "B0EXAMPLE1" || results[i].Status != domain.ResolutionFound {
			t.Fatalf("caller %d got %+v", i, results[i])
		}
	}
	if n := atomic.LoadInt64(&catalog.calls); n != 1 {
		t.Errorf("external lookups = %d, want 1", n)
	}
}

func TestNegativeCacheNotRequeried(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{matches: nil} // zero matches: not_found
	r := New(store, nil, catalog, nil, nil)

	first, err := r.Resolve(context.Background(), "", "000000000000")
	if err != nil {
		t.Fatalf("initial resolve failed: %v", err)
	}
	if first.Status != domain.ResolutionNotFound {
		t.Fatalf("status = %q, want not_found", first.Status)
	}

	for i := 0; i < 1000; i++ {
		entry, err := r.Resolve(context.Background(), "", "000000000000")
		if err != nil {
			t.Fatalf("repeat resolve %d failed: %v", i, err)
		}
		if entry.Status != domain.ResolutionNotFound {
			t.Fatalf("repeat resolve %d status = %q", i, entry.Status)
		}
	}

	if n := atomic.LoadInt64(&catalog.calls); n != 1 {
		t.Errorf("external lookups = %d, want 1 (negative result cached)", n)
	}
}

func TestAmbiguousResolution(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{matches: []gateway.CatalogMatch{
		{ASIN: "B0AAA11111", Title: "Widget, red"},
		{ASIN: "B0BBB22222", Title: "Widget, blue"},
		{ASIN: "B0CCC33333", Title: "Widget, 3-pack"},
	}}
	r := New(store, nil, catalog, &Config{MaxCandidates: 2}, nil)

	entry, err := r.Resolve(context.Background(), "", "123456789012")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if entry.Status != domain.ResolutionAmbiguous {
		t.Fatalf("status = %q, want ambiguous", entry.Status)
	}
	if entry.ASIN != "" {
		t.Errorf("ambiguous entry must not carry a resolved ASIN, got %q", entry.ASIN)
	}
	if len(entry.Candidates) != 2 {
		t.Errorf("candidates = %d, want 2 (bounded)", len(entry.Candidates))
	}
}

func TestTenantChoiceCheckedBeforeSharedCache(t *testing.T) {
	store := newMemStore()
	choices := newMemChoices()
	catalog := &fakeCatalog{matches: []gateway.CatalogMatch{
		{ASIN: "B0AAA11111"}, {ASIN: "B0BBB22222"},
	}}
	r := New(store, choices, catalog, nil, nil)

	// Shared cache ends up ambiguous.
	entry, err := r.Resolve(context.Background(), "tenant-a", "123456789012")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if entry.Status != domain.ResolutionAmbiguous {
		t.Fatalf("status = %q, want ambiguous", entry.Status)
	}

	if err := r.RememberChoice(context.Background(), "tenant-a", "123456789012", "B0BBB22222"); err != nil {
		t.Fatalf("remember choice failed: %v", err)
	}

	// The tenant now gets their choice; other tenants still see ambiguous.
	got, err := r.Resolve(context.Background(), "tenant-a", "123456789012")
	if err != nil {
		t.Fatalf("post-choice resolve failed: %v", err)
	}
	if got.Status != domain.ResolutionFound || got.ASIN != "B0BBB22222" {
		t.Errorf("tenant-a resolution = %+v, want chosen ASIN", got)
	}

	other, err := r.Resolve(context.Background(), "tenant-b", "123456789012")
	if err != nil {
		t.Fatalf("other tenant resolve failed: %v", err)
	}
	if other.Status != domain.ResolutionAmbiguous {
		t.Errorf("tenant-b status = %q, want ambiguous", other.Status)
	}

	if n := atomic.LoadInt64(&catalog.calls); n != 1 {
		t.Errorf("external lookups = %d, want 1", n)
	}
}

func TestHitBumpsLookupCounter(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{matches: singleMatch()}
	r := New(store, nil, catalog, nil, nil)

	if _, err := r.Resolve(context.Background(), "", "036000291452"); err != nil {
		t.Fatalf("initial resolve failed: %v", err)
	}
	if _, err := r.Resolve(context.Background(), "", "036000291452"); err != nil {
		t.Fatalf("repeat resolve failed: %v", err)
	}

	// The touch is fire-and-forget; poll for it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.lookupCount("036000291452") >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("lookup count = %d, want >= 2", store.lookupCount("036000291452"))
}

func TestErrorEntriesAreRetried(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{matches: singleMatch(), err: gateway.ErrUnavailable, errOnce: 1}
	r := New(store, nil, catalog, nil, nil)

	if _, err := r.Resolve(context.Background(), "", "036000291452"); !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// The failed lookup left an error entry, which does not block a retry.
	entry, err := r.Resolve(context.Background(), "", "036000291452")
	if err != nil {
		t.Fatalf("retry resolve failed: %v", err)
	}
	if entry.Status != domain.ResolutionFound {
		t.Errorf("status = %q, want found after retry", entry.Status)
	}
	if n := atomic.LoadInt64(&catalog.calls); n != 2 {
		t.Errorf("external lookups = %d, want 2", n)
	}
}

func TestGatewayNotFoundCachedAsNegative(t *testing.T) {
	store := newMemStore()
	catalog := &fakeCatalog{err: gateway.ErrNotFound, errOnce: 1000}
	r := New(store, nil, catalog, nil, nil)

	entry, err := r.Resolve(context.Background(), "", "999999999999")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if entry.Status != domain.ResolutionNotFound {
		t.Fatalf("status = %q, want not_found", entry.Status)
	}

	if _, err := r.Resolve(context.Background(), "", "999999999999"); err != nil {
		t.Fatalf("repeat resolve failed: %v", err)
	}
	if n := atomic.LoadInt64(&catalog.calls); n != 1 {
		t.Errorf("external lookups = %d, want 1", n)
	}
}
