package repository

import (
	"context"

	"github.com/mattgold/scoutline/internal/domain"
	"gorm.io/gorm"
)

// ChunkRepository handles chunk persistence.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// CreateBatch inserts a job's chunks in one statement. Chunks are created
// eagerly at job start, all in pending.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&chunks).Error
}

// ListByJob returns a job's chunks ordered by index.
func (r *ChunkRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.Chunk, error) {
	var chunks []*domain.Chunk
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// Update saves the full chunk record.
func (r *ChunkRepository) Update(ctx context.Context, chunk *domain.Chunk) error {
	return r.db.WithContext(ctx).Save(chunk).Error
}
