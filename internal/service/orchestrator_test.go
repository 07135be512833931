package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattgold/scoutline/internal/domain"
	"github.com/mattgold/scoutline/internal/gateway"
	"github.com/mattgold/scoutline/internal/resolver"
)

// --- in-memory stores ---

type memJobs struct {
	mu       sync.Mutex
	jobs     map[string]domain.ScanJob
	onUpdate func(job domain.ScanJob)
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]domain.ScanJob{}}
}

func (m *memJobs) Create(_ context.Context, job *domain.ScanJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (m *memJobs) Update(_ context.Context, job *domain.ScanJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	if m.onUpdate != nil {
		m.onUpdate(*job)
	}
	return nil
}

type memChunks struct {
	mu     sync.Mutex
	chunks map[string]domain.Chunk
}

func newMemChunks() *memChunks {
	return &memChunks{chunks: map[string]domain.Chunk{}}
}

func (m *memChunks) CreateBatch(_ context.Context, chunks []*domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = *c
	}
	return nil
}

func (m *memChunks) ListByJob(_ context.Context, jobID string) ([]*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Chunk
	for _, c := range m.chunks {
		if c.JobID == jobID {
			cc := c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *memChunks) Update(_ context.Context, chunk *domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[chunk.ID] = *chunk
	return nil
}

type memResults struct {
	mu      sync.Mutex
	results []domain.AnalysisResult
}

func (m *memResults) Save(_ context.Context, r *domain.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.results {
		if existing.JobID == r.JobID && existing.RowIndex == r.RowIndex {
			m.results[i] = *r
			return nil
		}
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *memResults) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// --- fakes for the resolution and enrichment edges ---

type stubResolver struct {
	calls int64
	fail  map[string]error
	skip  map[string]domain.ResolutionStatus
}

func (s *stubResolver) Resolve(_ context.Context, _, upc string) (*domain.UPCResolution, error) {
	atomic.AddInt64(&s.calls, 1)
	if err, ok := s.fail[upc]; ok {
		return nil, err
	}
	if status, ok := s.skip[upc]; ok {
		return &domain.UPCResolution{UPC: upc, Status: status}, nil
	}
	return &domain.UPCResolution{UPC: upc, ASIN: "B0" + upc, Status: domain.ResolutionFound}, nil
}

type stubEnricher struct {
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (s *stubEnricher) Enrich(_ context.Context, _, _ string) (*Enrichment, error) {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
	}
	if s.release != nil {
		<-s.release
	}
	return &Enrichment{SellPrice: 30, FeesTotal: 5, SellerCount: 5, SalesRank: 500}, nil
}

func testRows(n int) []domain.ProductRow {
	rows := make([]domain.ProductRow, n)
	for i := range rows {
		rows[i] = domain.ProductRow{RowIndex: i, Code: fmt.Sprintf("00000000%04d", i), Cost: 10}
	}
	return rows
}

func newTestOrchestrator(cfg Config) (*Orchestrator, *memJobs, *memChunks, *memResults) {
	jobs := newMemJobs()
	chunks := newMemChunks()
	results := &memResults{}
	o := NewOrchestrator(jobs, chunks, results, &stubResolver{}, &stubEnricher{}, cfg, nil)
	return o, jobs, chunks, results
}

// --- tests ---

func TestSubmitPartitionsWithoutGaps(t *testing.T) {
	const chunkSize = 100
	for _, n := range []int{0, 1, 99, 100, 101, 250, 300} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			o, _, chunkStore, _ := newTestOrchestrator(Config{ChunkSize: chunkSize})
			job, err := o.Submit(context.Background(), SubmitRequest{
				TenantID: "t1", Marketplace: "US", Rows: testRows(n),
			})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}

			chunks, _ := chunkStore.ListByJob(context.Background(), job.ID)
			want := (n + chunkSize - 1) / chunkSize
			if len(chunks) != want {
				t.Fatalf("got %d chunks, want %d", len(chunks), want)
			}
			next := 0
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if c.StartRow != next {
					t.Errorf("chunk %d starts at %d, want %d", i, c.StartRow, next)
				}
				if c.RowCount() <= 0 || c.RowCount() > chunkSize {
					t.Errorf("chunk %d covers %d rows", i, c.RowCount())
				}
				next = c.EndRow
			}
			if next != n {
				t.Errorf("chunks cover [0,%d), want [0,%d)", next, n)
			}
		})
	}
}

func TestSubmitSeedsBoundaryRejections(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(Config{})
	rejected := []domain.RowError{
		{RowIndex: 3, Reason: "missing code"},
		{RowIndex: 7, Reason: "invalid cost"},
		{RowIndex: 9, Reason: "missing code"},
	}
	job, err := o.Submit(context.Background(), SubmitRequest{
		TenantID: "t1", Marketplace: "US", Rows: testRows(5), Rejected: rejected,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if job.TotalRows != 8 {
		t.Errorf("TotalRows = %d, want 8", job.TotalRows)
	}
	if job.Processed != 3 || job.Skipped != 3 {
		t.Errorf("processed/skipped = %d/%d, want 3/3", job.Processed, job.Skipped)
	}
	if len(job.Errors) != 2 {
		t.Fatalf("got %d error groups, want 2", len(job.Errors))
	}
	if job.Errors[0].Reason != "missing code" || job.Errors[0].Count != 2 || job.Errors[0].SampleRow != 3 {
		t.Errorf("unexpected first group: %+v", job.Errors[0])
	}
}

func TestRunHoldsCounterInvariant(t *testing.T) {
	o, jobStore, _, results := newTestOrchestrator(Config{ChunkSize: 10, Workers: 4})
	jobStore.onUpdate = func(job domain.ScanJob) {
		if job.Processed != job.Succeeded+job.Failed+job.Skipped {
			t.Errorf("invariant broken: processed=%d succeeded=%d failed=%d skipped=%d",
				job.Processed, job.Succeeded, job.Failed, job.Skipped)
		}
	}

	job, err := o.Submit(context.Background(), SubmitRequest{
		TenantID: "t1", Marketplace: "US", Rows: testRows(300),
		Rejected: []domain.RowError{{RowIndex: 300, Reason: "invalid cost"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := o.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, _ := jobStore.Get(context.Background(), job.ID)
	if final.Status != domain.JobStatusComplete {
		t.Fatalf("status = %s, want complete", final.Status)
	}
	if final.Processed != 301 || final.Succeeded != 300 || final.Skipped != 1 {
		t.Errorf("final counters: processed=%d succeeded=%d skipped=%d", final.Processed, final.Succeeded, final.Skipped)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on completion")
	}
	if results.len() != 300 {
		t.Errorf("got %d results, want 300", results.len())
	}
}

func TestRunRecordsRowFailuresAndSkips(t *testing.T) {
	jobs := newMemJobs()
	chunks := newMemChunks()
	results := &memResults{}
	res := &stubResolver{
		fail: map[string]error{"000000000001": fmt.Errorf("boom")},
		skip: map[string]domain.ResolutionStatus{
			"000000000002": domain.ResolutionNotFound,
			"000000000003": domain.ResolutionAmbiguous,
		},
	}
	o := NewOrchestrator(jobs, chunks, results, res, &stubEnricher{}, Config{ChunkSize: 2}, nil)

	job, err := o.Submit(context.Background(), SubmitRequest{
		TenantID: "t1", Marketplace: "US", Rows: testRows(5),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := o.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, _ := jobs.Get(context.Background(), job.ID)
	if final.Status != domain.JobStatusComplete {
		t.Fatalf("status = %s, want complete (row failures never fail the job)", final.Status)
	}
	if final.Succeeded != 2 || final.Failed != 1 || final.Skipped != 2 {
		t.Errorf("counters: succeeded=%d failed=%d skipped=%d, want 2/1/2", final.Succeeded, final.Failed, final.Skipped)
	}
	reasons := map[string]int{}
	for _, g := range final.Errors {
		reasons[g.Reason] = g.Count
	}
	if reasons[ReasonLookupFailed] != 1 || reasons[ReasonUPCNotFound] != 1 || reasons[ReasonAmbiguousASIN] != 1 {
		t.Errorf("unexpected error summary: %+v", final.Errors)
	}
	if results.len() != 2 {
		t.Errorf("got %d results, want 2", results.len())
	}
}

func TestCancelStopsPendingChunksAndKeepsResults(t *testing.T) {
	jobs := newMemJobs()
	chunkStore := newMemChunks()
	results := &memResults{}
	enr := &stubEnricher{started: make(chan struct{}), release: make(chan struct{})}
	o := NewOrchestrator(jobs, chunkStore, results, &stubResolver{}, enr, Config{ChunkSize: 1, Workers: 1}, nil)

	job, err := o.Submit(context.Background(), SubmitRequest{
		TenantID: "t1", Marketplace: "US", Rows: testRows(5),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background(), job.ID) }()

	<-enr.started
	if err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(enr.release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	final, _ := jobs.Get(context.Background(), job.ID)
	if final.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on cancellation")
	}
	completedAt := *final.CompletedAt

	chunks, _ := chunkStore.ListByJob(context.Background(), job.ID)
	cancelled := 0
	for _, c := range chunks {
		if !c.Status.Terminal() {
			t.Errorf("chunk %d left in %s", c.Index, c.Status)
		}
		if c.Status == domain.ChunkStatusCancelled {
			cancelled++
			if c.StartedAt != nil {
				t.Errorf("cancelled chunk %d was started", c.Index)
			}
			if c.Succeeded != 0 {
				t.Errorf("cancelled chunk %d has %d successes", c.Index, c.Succeeded)
			}
		}
	}
	if cancelled == 0 {
		t.Error("no chunk went straight to cancelled")
	}

	// The row in flight finished and its verdict was kept.
	if results.len() != 1 {
		t.Errorf("got %d results, want 1", results.len())
	}

	// Cancelling again is a no-op and does not move CompletedAt.
	if err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	after, _ := jobs.Get(context.Background(), job.ID)
	if !after.CompletedAt.Equal(completedAt) {
		t.Error("CompletedAt changed on repeated cancel")
	}
}

func TestCancelUnknownJob(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(Config{})
	if err := o.Cancel(context.Background(), "nope"); err != ErrJobNotFound {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestRunRequiresResidentRows(t *testing.T) {
	o, jobStore, _, _ := newTestOrchestrator(Config{})
	jobStore.Create(context.Background(), &domain.ScanJob{ID: "j1", TenantID: "t1", Marketplace: "US"})
	if err := o.Run(context.Background(), "j1"); err != ErrJobNotResident {
		t.Fatalf("err = %v, want ErrJobNotResident", err)
	}
}

// --- resolution cache fakes for the integration path ---

type memResolutions struct {
	mu      sync.Mutex
	entries map[string]domain.UPCResolution
}

func (m *memResolutions) Get(_ context.Context, upc string) (*domain.UPCResolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[upc]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memResolutions) Put(_ context.Context, e *domain.UPCResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.UPC] = *e
	return nil
}

func (m *memResolutions) Touch(_ context.Context, upc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[upc]; ok {
		e.LookupCount++
		m.entries[upc] = e
	}
	return nil
}

type countingCatalog struct {
	calls int64
}

func (c *countingCatalog) Catalog(_ context.Context, req gateway.CatalogRequest) (*gateway.CatalogPayload, error) {
	atomic.AddInt64(&c.calls, 1)
	time.Sleep(5 * time.Millisecond)
	return &gateway.CatalogPayload{Matches: []gateway.CatalogMatch{
		{ASIN: "B0" + req.UPC, Confidence: 0.95},
	}}, nil
}

// Duplicate codes in one upload must resolve upstream exactly once.
func TestRunDeduplicatesLookupsAcrossChunks(t *testing.T) {
	jobs := newMemJobs()
	chunkStore := newMemChunks()
	results := &memResults{}
	catalog := &countingCatalog{}
	res := resolver.New(&memResolutions{entries: map[string]domain.UPCResolution{}}, nil, catalog, nil, nil)
	o := NewOrchestrator(jobs, chunkStore, results, res, &stubEnricher{}, Config{ChunkSize: 2, Workers: 2}, nil)

	rows := []domain.ProductRow{
		{RowIndex: 0, Code: "036000291452", Cost: 10},
		{RowIndex: 1, Code: "012345678905", Cost: 12},
		{RowIndex: 2, Code: "036000291452", Cost: 10},
	}
	job, err := o.Submit(context.Background(), SubmitRequest{
		TenantID: "t1", Marketplace: "US", Rows: rows,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := o.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt64(&catalog.calls); got != 2 {
		t.Errorf("catalog calls = %d, want 2 (one per distinct code)", got)
	}
	if results.len() != 3 {
		t.Errorf("got %d results, want 3 (one per row, duplicates included)", results.len())
	}
	final, _ := jobs.Get(context.Background(), job.ID)
	if final.Succeeded != 3 {
		t.Errorf("succeeded = %d, want 3", final.Succeeded)
	}
}
