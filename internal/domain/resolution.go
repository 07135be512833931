package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ResolutionStatus represents the outcome of a UPC-to-ASIN lookup.
type ResolutionStatus string

const (
	ResolutionFound     ResolutionStatus = "found"
	ResolutionNotFound  ResolutionStatus = "not_found"
	ResolutionAmbiguous ResolutionStatus = "ambiguous"
	ResolutionError     ResolutionStatus = "error"
)

// ASINCandidate is one possible catalog match for an ambiguous UPC, with
// enough metadata for a human to disambiguate.
type ASINCandidate struct {
	ASIN         string  `json:"asin"`
	Title        string  `json:"title,omitempty"`
	Brand        string  `json:"brand,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// CandidateList stores ambiguous-match candidates as JSON.
type CandidateList []ASINCandidate

// Value implements the driver.Valuer interface for database serialization.
func (l CandidateList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *CandidateList) Scan(value interface{}) error {
	if value == nil {
		*l = CandidateList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan CandidateList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// UPCResolution is the shared, cross-tenant mapping from a UPC to its catalog
// identifier. The mapping is a fact about the world, not about any one user,
// so entries are global and mutated in place on repeat lookups rather than
// duplicated.
//
// Invariants: status found requires a non-empty ASIN and at most one
// candidate; status ambiguous requires at least two candidates and an empty
// ASIN.
type UPCResolution struct {
	UPC         string           `gorm:"type:text;primaryKey" json:"upc"`
	ASIN        string           `gorm:"type:text;index:idx_resolutions_asin" json:"asin,omitempty"`
	Status      ResolutionStatus `gorm:"type:text;not null;index:idx_resolutions_status" json:"status"`
	Candidates  CandidateList    `gorm:"type:text" json:"candidates,omitempty"`
	Source      string           `gorm:"type:text" json:"source,omitempty"`
	Confidence  float64          `json:"confidence"`
	LookupCount int64            `gorm:"default:0" json:"lookup_count"`
	FirstSeenAt time.Time        `json:"first_seen_at"`
	LastSeenAt  time.Time        `json:"last_seen_at"`
}

// TableName returns the database table name for UPCResolution.
func (UPCResolution) TableName() string {
	return "upc_resolutions"
}

// Validate checks the status/ASIN/candidate invariants.
// Parameters: none.
// Returns:
//   - error: non-nil when the entry violates a resolution invariant.
func (r *UPCResolution) Validate() error {
	switch r.Status {
	case ResolutionFound:
		if r.ASIN == "" {
			return errors.New("resolution marked found without an ASIN")
		}
		if len(r.Candidates) > 1 {
			return errors.New("resolution marked found with multiple candidates")
		}
	case ResolutionAmbiguous:
		if r.ASIN != "" {
			return errors.New("ambiguous resolution must not carry a resolved ASIN")
		}
		if len(r.Candidates) < 2 {
			return errors.New("ambiguous resolution requires at least two candidates")
		}
	}
	return nil
}

// TenantASINChoice is a tenant-scoped remembered disambiguation: when a user
// picks one candidate for an ambiguous UPC, the choice is consulted before
// the shared cache on every later lookup by that tenant.
type TenantASINChoice struct {
	TenantID  string    `gorm:"type:text;primaryKey" json:"tenant_id"`
	UPC       string    `gorm:"type:text;primaryKey" json:"upc"`
	ASIN      string    `gorm:"type:text;not null" json:"asin"`
	ChosenAt  time.Time `json:"chosen_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for TenantASINChoice.
func (TenantASINChoice) TableName() string {
	return "tenant_asin_choices"
}
