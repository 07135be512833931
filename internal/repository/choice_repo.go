package repository

import (
	"context"
	"errors"

	"github.com/mattgold/scoutline/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChoiceRepository handles tenant-scoped disambiguation choices.
type ChoiceRepository struct {
	db *gorm.DB
}

// NewChoiceRepository creates a new ChoiceRepository.
func NewChoiceRepository(db *gorm.DB) *ChoiceRepository {
	return &ChoiceRepository{db: db}
}

// Get retrieves a tenant's remembered choice for a UPC, or (nil, nil) when
// none exists.
func (r *ChoiceRepository) Get(ctx context.Context, tenantID, upc string) (*domain.TenantASINChoice, error) {
	var choice domain.TenantASINChoice
	err := r.db.WithContext(ctx).
		First(&choice, "tenant_id = ? AND upc = ?", tenantID, upc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &choice, nil
}

// Put upserts a tenant's choice.
func (r *ChoiceRepository) Put(ctx context.Context, choice *domain.TenantASINChoice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "upc"}},
		UpdateAll: true,
	}).Create(choice).Error
}
