package repository

import (
	"context"

	"github.com/mattgold/scoutline/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResultRepository handles analysis result persistence.
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save upserts a row's verdict keyed by (job, row). A re-run of the same row
// supersedes the previous result rather than merging with it.
func (r *ResultRepository) Save(ctx context.Context, result *domain.AnalysisResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}, {Name: "row_index"}},
		UpdateAll: true,
	}).Create(result).Error
}

// ListByJob returns a job's results in row order, optionally filtered by tier.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: parent job.
//   - tier: tier filter, empty for all.
//   - limit: maximum results to return.
//   - offset: pagination offset.
// Returns:
//   - []*domain.AnalysisResult: matching results.
//   - int64: total matching count before pagination.
//   - error: non-nil if the query fails.
func (r *ResultRepository) ListByJob(ctx context.Context, jobID string, tier domain.Tier, limit, offset int) ([]*domain.AnalysisResult, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.AnalysisResult{}).Where("job_id = ?", jobID)
	if tier != "" {
		query = query.Where("tier = ?", tier)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*domain.AnalysisResult
	err := query.Order("row_index ASC").Limit(limit).Offset(offset).Find(&results).Error
	return results, total, err
}
