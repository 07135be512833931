package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mattgold/scoutline/internal/api/middleware"
	"github.com/mattgold/scoutline/internal/domain"
	"github.com/mattgold/scoutline/internal/ingest"
	"github.com/mattgold/scoutline/internal/logger"
	"github.com/mattgold/scoutline/internal/repository"
	"github.com/mattgold/scoutline/internal/service"
	"github.com/mattgold/scoutline/internal/storage"
)

// ScanHandler handles scan job endpoints: upload, status, cancel, results.
type ScanHandler struct {
	orchestrator *service.Orchestrator
	parser       *ingest.Parser
	results      *repository.ResultRepository
	jobs         *repository.JobRepository
	store        storage.ObjectStorage // nil disables upload archiving
}

// NewScanHandler creates a new scan handler.
// Parameters:
//   - orchestrator: job lifecycle owner.
//   - parser: supplier file parser.
//   - results: result listing repository.
//   - jobs: job listing repository.
//   - store: upload archive; nil disables archiving.
// Returns:
//   - *ScanHandler: initialized handler.
func NewScanHandler(orchestrator *service.Orchestrator, parser *ingest.Parser, results *repository.ResultRepository, jobs *repository.JobRepository, store storage.ObjectStorage) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		parser:       parser,
		results:      results,
		jobs:         jobs,
		store:        store,
	}
}

// CreateScan handles POST /api/v1/scans. It accepts a multipart supplier file
// plus a column mapping, parses it at the boundary, submits the job, and
// starts the run in the background. The response returns immediately with the
// job in pending.
func (h *ScanHandler) CreateScan(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Tenant ID is required (X-Tenant-ID header or tenant_id field)",
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A supplier file is required",
		})
		return
	}

	mapping := ingest.ColumnMapping{
		CodeColumn:     c.DefaultPostForm("code_column", "upc"),
		CostColumn:     c.DefaultPostForm("cost_column", "cost"),
		PackSizeColumn: c.PostForm("pack_size_column"),
		HasHeader:      c.DefaultPostForm("has_header", "true") == "true",
	}
	chunkSize, _ := strconv.Atoi(c.PostForm("chunk_size"))

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to open uploaded file: " + err.Error(),
		})
		return
	}
	defer file.Close()

	parsed, err := h.parser.Parse(file, mapping)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to parse supplier file: " + err.Error(),
		})
		return
	}
	if len(parsed.Rows)+len(parsed.Rejected) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Supplier file contains no data rows",
		})
		return
	}

	job, err := h.orchestrator.Submit(c.Request.Context(), service.SubmitRequest{
		TenantID:    tenantID,
		Marketplace: c.DefaultPostForm("marketplace", "US"),
		SourceFile:  fileHeader.Filename,
		ChunkSize:   chunkSize,
		Rows:        parsed.Rows,
		Rejected:    parsed.Rejected,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create scan job: " + err.Error(),
		})
		return
	}

	h.archiveUpload(c, job, fileHeader)

	// The run outlives this request; give it a fresh context carrying only
	// the logger fields.
	runCtx := middleware.GetLogger(c).WithContext(context.Background())
	runCtx = logger.SetJobID(runCtx, job.ID)
	go func() {
		if err := h.orchestrator.Run(runCtx, job.ID); err != nil {
			logger.CtxError(runCtx, "Scan run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, job)
}

// archiveUpload stores the raw upload for later audit. Failures are logged
// and never fail the scan.
func (h *ScanHandler) archiveUpload(c *gin.Context, job *domain.ScanJob, fileHeader *multipart.FileHeader) {
	if h.store == nil {
		return
	}
	log := middleware.GetLogger(c).WithField(logger.FieldJobID, job.ID)

	file, err := fileHeader.Open()
	if err != nil {
		log.WithError(err).Warn("Failed to reopen upload for archiving")
		return
	}
	defer file.Close()

	key := storage.UploadKey(job.TenantID, job.ID, fileHeader.Filename)
	if err := h.store.Upload(c.Request.Context(), key, file, fileHeader.Size, "text/csv"); err != nil {
		log.WithError(err).Warn("Failed to archive upload")
		return
	}

	job.StorageKey = key
	if err := h.jobs.Update(c.Request.Context(), job); err != nil {
		log.WithError(err).Warn("Failed to record upload storage key")
	}
}

// GetScan handles GET /api/v1/scans/:id.
func (h *ScanHandler) GetScan(c *gin.Context) {
	job, err := h.orchestrator.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scan job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load scan job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListScans handles GET /api/v1/scans.
func (h *ScanHandler) ListScans(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tenant ID is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.jobs.ListByTenant(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scan jobs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// CancelScan handles POST /api/v1/scans/:id/cancel.
func (h *ScanHandler) CancelScan(c *gin.Context) {
	err := h.orchestrator.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scan job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel scan job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListResults handles GET /api/v1/scans/:id/results.
func (h *ScanHandler) ListResults(c *gin.Context) {
	jobID := c.Param("id")
	tier := domain.Tier(c.Query("tier"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, total, err := h.results.ListByJob(c.Request.Context(), jobID, tier, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list results: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// tenantFrom reads the tenant from the header first, then the form.
func tenantFrom(c *gin.Context) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	return c.PostForm("tenant_id")
}
