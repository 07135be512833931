package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mattgold/scoutline/internal/ingest"
	"github.com/mattgold/scoutline/internal/repository"
	"github.com/mattgold/scoutline/internal/resolver"
)

// ResolutionHandler exposes the shared UPC resolution cache: entry lookup,
// tenant disambiguation choices, and cache stats.
type ResolutionHandler struct {
	resolutions *repository.ResolutionRepository
	resolver    *resolver.Resolver
	cacheSizer  interface{ CacheSize() int } // nil hides the response-cache gauge
}

// NewResolutionHandler creates a new resolution handler.
func NewResolutionHandler(resolutions *repository.ResolutionRepository, res *resolver.Resolver, cacheSizer interface{ CacheSize() int }) *ResolutionHandler {
	return &ResolutionHandler{
		resolutions: resolutions,
		resolver:    res,
		cacheSizer:  cacheSizer,
	}
}

// GetResolution handles GET /api/v1/resolutions/:upc. It reads the cache
// without triggering an external lookup.
func (h *ResolutionHandler) GetResolution(c *gin.Context) {
	upc := ingest.NormalizeUPC(c.Param("upc"))
	if !ingest.ValidUPC(upc) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid UPC"})
		return
	}

	entry, err := h.resolutions.Get(c.Request.Context(), upc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load resolution: " + err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "UPC has not been resolved yet"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type choiceRequest struct {
	ASIN string `json:"asin" binding:"required"`
}

// RememberChoice handles POST /api/v1/resolutions/:upc/choice. The tenant
// picks one ASIN for an ambiguous UPC; later scans by that tenant resolve the
// code without asking again.
func (h *ResolutionHandler) RememberChoice(c *gin.Context) {
	tenantID := c.GetHeader("X-Tenant-ID")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header is required"})
		return
	}
	upc := ingest.NormalizeUPC(c.Param("upc"))
	if !ingest.ValidUPC(upc) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid UPC"})
		return
	}

	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ASIN is required"})
		return
	}

	if err := h.resolver.RememberChoice(c.Request.Context(), tenantID, upc, req.ASIN); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save choice: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// GetStats handles GET /api/v1/resolutions/stats.
func (h *ResolutionHandler) GetStats(c *gin.Context) {
	stats, err := h.resolutions.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats: " + err.Error()})
		return
	}

	payload := gin.H{
		"total":         stats.Total,
		"by_status":     stats.ByStatus,
		"total_lookups": stats.TotalLookups,
	}
	if h.cacheSizer != nil {
		payload["response_cache_entries"] = h.cacheSizer.CacheSize()
	}
	c.JSON(http.StatusOK, payload)
}
