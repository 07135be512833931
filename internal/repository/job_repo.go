package repository

import (
	"context"
	"errors"

	"github.com/mattgold/scoutline/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles scan job persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new scan job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.ScanJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a scan job by its ID, or (nil, nil) when absent.
func (r *JobRepository) Get(ctx context.Context, id string) (*domain.ScanJob, error) {
	var job domain.ScanJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Update saves the full job record.
func (r *JobRepository) Update(ctx context.Context, job *domain.ScanJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// ListByTenant returns a tenant's jobs, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: owning tenant.
//   - limit: maximum number of jobs to return.
//   - offset: pagination offset.
// Returns:
//   - []*domain.ScanJob: matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*domain.ScanJob, error) {
	var jobs []*domain.ScanJob
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	return jobs, err
}
