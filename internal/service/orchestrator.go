package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattgold/scoutline/internal/analyzer"
	"github.com/mattgold/scoutline/internal/domain"
	"github.com/mattgold/scoutline/internal/logger"
)

// JobStore persists scan jobs. Get returns (nil, nil) when absent.
type JobStore interface {
	Create(ctx context.Context, job *domain.ScanJob) error
	Get(ctx context.Context, id string) (*domain.ScanJob, error)
	Update(ctx context.Context, job *domain.ScanJob) error
}

// ChunkStore persists chunks.
type ChunkStore interface {
	CreateBatch(ctx context.Context, chunks []*domain.Chunk) error
	ListByJob(ctx context.Context, jobID string) ([]*domain.Chunk, error)
	Update(ctx context.Context, chunk *domain.Chunk) error
}

// ResultStore persists per-row verdicts.
type ResultStore interface {
	Save(ctx context.Context, result *domain.AnalysisResult) error
}

// IdentifierResolver maps supplier codes to catalog identifiers.
type IdentifierResolver interface {
	Resolve(ctx context.Context, tenantID, upc string) (*domain.UPCResolution, error)
}

// Config holds orchestrator tuning knobs.
type Config struct {
	ChunkSize       int // rows per chunk, default 100
	Workers         int // global concurrent chunk limit across all jobs
	ErrorSummaryCap int // max deduplicated error groups kept per job
}

// Orchestrator owns the scan job lifecycle: it partitions an upload into
// chunks, drives them through a shared worker pool, and keeps the job's
// counters as a pure projection of chunk state. Job counters always satisfy
// processed = succeeded + failed + skipped, and freeze once the job is
// terminal.
type Orchestrator struct {
	jobs     JobStore
	chunks   ChunkStore
	results  ResultStore
	resolver IdentifierResolver
	enricher Enricher
	cfg      Config
	log      *logger.Logger

	// sem bounds chunk concurrency across every running job.
	sem chan struct{}

	mu     sync.Mutex
	active map[string]*jobState
}

// jobState is the in-memory side of a submitted job: the parsed rows (never
// persisted row-by-row), the boundary rejections, and the cancel hook.
type jobState struct {
	mu       sync.Mutex
	rows     []domain.ProductRow
	boundary []domain.RowError
	cancel   context.CancelFunc
	stopping bool
}

// NewOrchestrator creates an Orchestrator.
// Parameters:
//   - jobs, chunks, results: persistence for jobs, chunks, and verdicts.
//   - resolver: identifier resolution layer.
//   - enricher: market data fetcher for resolved identifiers.
//   - cfg: tuning; zero values use defaults.
//   - log: logger instance.
// Returns:
//   - *Orchestrator: initialized orchestrator.
func NewOrchestrator(jobs JobStore, chunks ChunkStore, results ResultStore, resolver IdentifierResolver, enricher Enricher, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ErrorSummaryCap <= 0 {
		cfg.ErrorSummaryCap = 25
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		jobs:     jobs,
		chunks:   chunks,
		results:  results,
		resolver: resolver,
		enricher: enricher,
		cfg:      cfg,
		log:      log,
		sem:      make(chan struct{}, cfg.Workers),
		active:   make(map[string]*jobState),
	}
}

// SubmitRequest describes one parsed upload handed over by the front door.
// Rows are the normalized rows that survived boundary validation; Rejected
// carries the rows the boundary dropped, which seed the job's skipped count.
type SubmitRequest struct {
	TenantID    string
	Marketplace string
	SourceFile  string
	StorageKey  string
	ChunkSize   int // 0 uses the configured default
	Rows        []domain.ProductRow
	Rejected    []domain.RowError
}

// Submit creates the job record and eagerly partitions the accepted rows into
// contiguous chunks covering [0, len(rows)) with no gaps or overlap. The last
// chunk may be short. Rows stay in memory until Run drains them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: the parsed upload.
// Returns:
//   - *domain.ScanJob: the created job, in pending.
//   - error: non-nil if validation or persistence fails.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.ScanJob, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if req.Marketplace == "" {
		return nil, fmt.Errorf("marketplace is required")
	}
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = o.cfg.ChunkSize
	}

	boundarySkip := len(req.Rejected)
	job := &domain.ScanJob{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		SourceFile:  req.SourceFile,
		StorageKey:  req.StorageKey,
		Marketplace: req.Marketplace,
		TotalRows:   len(req.Rows) + boundarySkip,
		ChunkSize:   chunkSize,
		Processed:   boundarySkip,
		Skipped:     boundarySkip,
		Status:      domain.JobStatusPending,
		Errors:      buildSummary(req.Rejected, o.cfg.ErrorSummaryCap),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	chunks := partition(job.ID, len(req.Rows), chunkSize)
	if err := o.chunks.CreateBatch(ctx, chunks); err != nil {
		now := time.Now()
		job.Status = domain.JobStatusFailed
		job.CompletedAt = &now
		if uerr := o.jobs.Update(ctx, job); uerr != nil {
			o.log.WithError(uerr).WithField(logger.FieldJobID, job.ID).Error("Failed to mark job failed")
		}
		return nil, fmt.Errorf("create chunks: %w", err)
	}

	o.mu.Lock()
	o.active[job.ID] = &jobState{rows: req.Rows, boundary: req.Rejected}
	o.mu.Unlock()

	o.log.WithFields(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldTenantID: job.TenantID,
		"total_rows":         job.TotalRows,
		"chunks":             len(chunks),
	}).Info("Scan job submitted")
	return job, nil
}

// partition slices [0, n) into contiguous chunks of at most size rows.
func partition(jobID string, n, size int) []*domain.Chunk {
	var chunks []*domain.Chunk
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunks = append(chunks, &domain.Chunk{
			ID:       uuid.NewString(),
			JobID:    jobID,
			Index:    start / size,
			StartRow: start,
			EndRow:   end,
			Status:   domain.ChunkStatusPending,
		})
	}
	return chunks
}

// Run drives a submitted job to a terminal state. It blocks until every chunk
// is terminal; callers wanting fire-and-forget run it in a goroutine.
// Parameters:
//   - ctx: run context; cancelling it behaves like Cancel.
//   - jobID: job to run.
// Returns:
//   - error: non-nil when the job cannot be started at all. Row and chunk
//     failures are recorded on the job, not returned.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	o.mu.Lock()
	st := o.active[jobID]
	o.mu.Unlock()
	if st == nil {
		return ErrJobNotResident
	}

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	jctx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.mu.Lock()
	st.cancel = cancel
	alreadyStopping := st.stopping
	st.mu.Unlock()
	if alreadyStopping {
		cancel()
	}

	now := time.Now()
	job.Status = domain.JobStatusParsing
	job.StartedAt = &now
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("start job: %w", err)
	}

	chunks, err := o.chunks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	job.Status = domain.JobStatusConverting
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("advance job: %w", err)
	}

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		if chunk.Status.Terminal() {
			continue
		}
		wg.Add(1)
		go func(c *domain.Chunk) {
			defer wg.Done()
			o.runChunk(jctx, job, st, c)
		}(chunk)
	}
	wg.Wait()

	// All chunks are terminal now; make sure the projection ran even if the
	// last transition's recompute raced a cancel.
	o.onChunkTransition(context.WithoutCancel(ctx), jobID, st)

	o.mu.Lock()
	delete(o.active, jobID)
	o.mu.Unlock()
	return nil
}

// runChunk takes one chunk through queued, processing, and a terminal state.
// Persistence runs on a cancel-immune context so a mid-flight cancel cannot
// lose the chunk's bookkeeping.
func (o *Orchestrator) runChunk(ctx context.Context, job *domain.ScanJob, st *jobState, chunk *domain.Chunk) {
	pctx := context.WithoutCancel(ctx)
	log := o.log.WithFields(logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldChunkID: chunk.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprintf("%v", r)).Error("Chunk worker panicked")
			chunk.RowErrors = append(chunk.RowErrors, domain.RowError{
				RowIndex: chunk.StartRow + chunk.Processed,
				Reason:   ReasonChunkPanic,
			})
			o.finishChunk(pctx, st, job.ID, chunk, domain.ChunkStatusFailed)
		}
	}()

	now := time.Now()
	chunk.Status = domain.ChunkStatusQueued
	chunk.QueuedAt = &now
	if err := o.chunks.Update(pctx, chunk); err != nil {
		log.WithError(err).Error("Failed to queue chunk")
		o.finishChunk(pctx, st, job.ID, chunk, domain.ChunkStatusFailed)
		return
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		o.finishChunk(pctx, st, job.ID, chunk, domain.ChunkStatusCancelled)
		return
	}
	// select picks randomly among ready cases; re-check so a cancelled job
	// never starts a fresh chunk that won the slot anyway.
	if ctx.Err() != nil {
		o.finishChunk(pctx, st, job.ID, chunk, domain.ChunkStatusCancelled)
		return
	}

	started := time.Now()
	chunk.Status = domain.ChunkStatusProcessing
	chunk.StartedAt = &started
	if err := o.chunks.Update(pctx, chunk); err != nil {
		log.WithError(err).Error("Failed to start chunk")
		o.finishChunk(pctx, st, job.ID, chunk, domain.ChunkStatusFailed)
		return
	}
	o.onChunkTransition(pctx, job.ID, st)

	for i := chunk.StartRow; i < chunk.EndRow; i++ {
		// The cancel is advisory: the row in flight finishes, the rest of
		// the chunk does not start.
		if ctx.Err() != nil {
			break
		}
		o.processRow(ctx, job, chunk, st.rows[i])
	}

	status := domain.ChunkStatusComplete
	if ctx.Err() != nil && chunk.Processed < chunk.RowCount() {
		status = domain.ChunkStatusCancelled
	}
	o.finishChunk(pctx, st, job.ID, chunk, status)
	log.WithFields(logger.Fields{
		logger.FieldStatus:     string(status),
		logger.FieldCount:      chunk.Processed,
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
	}).Info("Chunk finished")
}

// finishChunk persists a chunk's terminal state and re-projects the job.
func (o *Orchestrator) finishChunk(pctx context.Context, st *jobState, jobID string, chunk *domain.Chunk, status domain.ChunkStatus) {
	now := time.Now()
	chunk.Status = status
	chunk.CompletedAt = &now
	if err := o.chunks.Update(pctx, chunk); err != nil {
		o.log.WithError(err).WithField(logger.FieldChunkID, chunk.ID).Error("Failed to persist chunk state")
	}
	o.onChunkTransition(pctx, jobID, st)
}

// processRow resolves, enriches, and classifies one row, updating the chunk's
// counters in place. Every handled row increments exactly one of succeeded,
// failed, or skipped.
func (o *Orchestrator) processRow(ctx context.Context, job *domain.ScanJob, chunk *domain.Chunk, row domain.ProductRow) {
	chunk.Processed++

	fail := func(reason string) {
		chunk.Failed++
		chunk.RowErrors = append(chunk.RowErrors, domain.RowError{
			RowIndex: row.RowIndex, Code: row.Code, Reason: reason,
		})
	}
	skip := func(reason string) {
		chunk.Skipped++
		chunk.RowErrors = append(chunk.RowErrors, domain.RowError{
			RowIndex: row.RowIndex, Code: row.Code, Reason: reason,
		})
	}

	res, err := o.resolver.Resolve(ctx, job.TenantID, row.Code)
	if err != nil {
		fail(ReasonLookupFailed)
		return
	}
	switch res.Status {
	case domain.ResolutionNotFound:
		skip(ReasonUPCNotFound)
		return
	case domain.ResolutionAmbiguous:
		skip(ReasonAmbiguousASIN)
		return
	}

	enr, err := o.enricher.Enrich(ctx, job.Marketplace, res.ASIN)
	if err != nil {
		fail(ReasonEnrichFailed)
		return
	}

	verdict := analyzer.Classify(analyzer.Input{
		Cost:        row.Cost,
		SellPrice:   enr.SellPrice,
		FeesTotal:   enr.FeesTotal,
		SellerCount: enr.SellerCount,
		SalesRank:   enr.SalesRank,
	})

	result := &domain.AnalysisResult{
		ID:               uuid.NewString(),
		JobID:            job.ID,
		TenantID:         job.TenantID,
		RowIndex:         row.RowIndex,
		Code:             row.Code,
		ASIN:             res.ASIN,
		ResolutionStatus: res.Status,
		Cost:             row.Cost,
		SellPrice:        enr.SellPrice,
		FeesTotal:        enr.FeesTotal,
		Profit:           verdict.Profit,
		ROI:              verdict.ROI,
		Margin:           verdict.Margin,
		BreakEven:        verdict.BreakEven,
		Tier:             verdict.Tier,
		IsProfitable:     verdict.IsProfitable,
		RiskLevel:        verdict.RiskLevel,
		SellerCount:      enr.SellerCount,
		SalesRank:        enr.SalesRank,
	}
	// The verdict is written even when a cancel lands mid-row: work already
	// paid for is kept.
	if err := o.results.Save(context.WithoutCancel(ctx), result); err != nil {
		fail(ReasonResultWrite)
		return
	}
	chunk.Succeeded++
}

// onChunkTransition re-derives the job's counters, error summary, phase, and
// terminal state from the persisted chunks. The projection is idempotent:
// running it twice after the same transition is a no-op, and it never touches
// a job that is already terminal.
func (o *Orchestrator) onChunkTransition(ctx context.Context, jobID string, st *jobState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	job, err := o.jobs.Get(ctx, jobID)
	if err != nil || job == nil {
		if err != nil {
			o.log.WithError(err).WithField(logger.FieldJobID, jobID).Error("Failed to load job for projection")
		}
		return
	}
	if job.Status.Terminal() {
		return
	}

	chunks, err := o.chunks.ListByJob(ctx, jobID)
	if err != nil {
		o.log.WithError(err).WithField(logger.FieldJobID, jobID).Error("Failed to list chunks for projection")
		return
	}

	o.project(job, chunks, st.boundary)

	allTerminal := true
	anyStarted := false
	for _, c := range chunks {
		if !c.Status.Terminal() {
			allTerminal = false
		}
		if c.Status != domain.ChunkStatusPending && c.Status != domain.ChunkStatusQueued {
			anyStarted = true
		}
	}

	if allTerminal {
		now := time.Now()
		if st.stopping {
			job.Status = domain.JobStatusCancelled
		} else {
			job.Status = domain.JobStatusComplete
		}
		if job.CompletedAt == nil {
			job.CompletedAt = &now
		}
	} else if anyStarted {
		job.Status = domain.JobStatusEnriching
	}

	if err := o.jobs.Update(ctx, job); err != nil {
		o.log.WithError(err).WithField(logger.FieldJobID, jobID).Error("Failed to persist job projection")
	}
}

// project recomputes the job's counters and error summary from chunk state.
// The boundary-rejected row count is derived from the gap between TotalRows
// and chunk coverage, so it survives even when the in-memory rejection list
// does not; the list itself only seeds the error summary.
func (o *Orchestrator) project(job *domain.ScanJob, chunks []*domain.Chunk, boundary []domain.RowError) {
	boundarySkip := job.TotalRows
	for _, c := range chunks {
		boundarySkip -= c.RowCount()
	}
	if boundarySkip < 0 {
		boundarySkip = 0
	}
	processed, succeeded, failed, skipped := boundarySkip, 0, 0, boundarySkip
	rowErrors := append([]domain.RowError(nil), boundary...)
	for _, c := range chunks {
		processed += c.Processed
		succeeded += c.Succeeded
		failed += c.Failed
		skipped += c.Skipped
		rowErrors = append(rowErrors, c.RowErrors...)
	}
	job.Processed = processed
	job.Succeeded = succeeded
	job.Failed = failed
	job.Skipped = skipped
	job.Errors = buildSummary(rowErrors, o.cfg.ErrorSummaryCap)
}

// Cancel stops a job. Chunks that have not started flip straight to
// cancelled; the chunk in flight finishes its current row and stops. The job
// goes terminal immediately, freezing its counters at the cancel point.
// Cancelling a terminal job is a no-op.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to cancel.
// Returns:
//   - error: non-nil if the job is unknown or persistence fails.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	st := o.active[jobID]
	o.mu.Unlock()
	if st == nil {
		// Submitted by another process; mark the intent, the chunks flip below.
		st = &jobState{stopping: true}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopping = true
	if st.cancel != nil {
		st.cancel()
	}

	chunks, err := o.chunks.ListByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	now := time.Now()
	for _, c := range chunks {
		if c.Status == domain.ChunkStatusPending || c.Status == domain.ChunkStatusQueued {
			c.Status = domain.ChunkStatusCancelled
			c.CompletedAt = &now
			if err := o.chunks.Update(ctx, c); err != nil {
				return fmt.Errorf("cancel chunk %s: %w", c.ID, err)
			}
		}
	}

	o.project(job, chunks, st.boundary)
	job.Status = domain.JobStatusCancelled
	if job.CompletedAt == nil {
		job.CompletedAt = &now
	}
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist cancel: %w", err)
	}

	o.log.WithFields(logger.Fields{
		logger.FieldJobID:    jobID,
		logger.FieldTenantID: job.TenantID,
	}).Info("Scan job cancelled")
	return nil
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*domain.ScanJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}
