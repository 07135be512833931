package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mattgold/scoutline/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResolutionRepository handles the shared, cross-tenant UPC resolution cache.
type ResolutionRepository struct {
	db *gorm.DB
}

// NewResolutionRepository creates a new ResolutionRepository.
func NewResolutionRepository(db *gorm.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// Get retrieves a resolution entry, or (nil, nil) on a cache miss.
func (r *ResolutionRepository) Get(ctx context.Context, upc string) (*domain.UPCResolution, error) {
	var entry domain.UPCResolution
	err := r.db.WithContext(ctx).First(&entry, "upc = ?", upc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put upserts a resolution entry keyed by UPC. Entries are mutated in place
// on re-resolution, never duplicated.
func (r *ResolutionRepository) Put(ctx context.Context, entry *domain.UPCResolution) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upc"}},
		UpdateAll: true,
	}).Create(entry).Error
}

// Touch bumps the lookup counter and last-seen timestamp for a cache hit.
func (r *ResolutionRepository) Touch(ctx context.Context, upc string) error {
	return r.db.WithContext(ctx).
		Model(&domain.UPCResolution{}).
		Where("upc = ?", upc).
		Updates(map[string]interface{}{
			"lookup_count": gorm.Expr("lookup_count + 1"),
			"last_seen_at": time.Now(),
		}).Error
}

// Stats summarizes the cache for dashboards.
type Stats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	TotalLookups int64            `json:"total_lookups"`
}

// GetStats returns cache-wide counters grouped by status.
func (r *ResolutionRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int64)}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&domain.UPCResolution{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}

	err = r.db.WithContext(ctx).
		Model(&domain.UPCResolution{}).
		Select("coalesce(sum(lookup_count), 0)").
		Scan(&stats.TotalLookups).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
