package domain

import "time"

// ProductRow is one normalized row handed to the orchestrator by the front
// door. Rows with a missing code or non-positive cost never reach the
// pipeline; they are rejected at the boundary and counted as skipped.
type ProductRow struct {
	RowIndex int     `json:"row_index"`
	Code     string  `json:"code"`
	Cost     float64 `json:"cost"`
	PackSize int     `json:"pack_size,omitempty"`
}

// Tier is a coarse profitability classification.
type Tier string

const (
	TierExcellent    Tier = "excellent"
	TierGood         Tier = "good"
	TierMarginal     Tier = "marginal"
	TierUnprofitable Tier = "unprofitable"
)

// RiskLevel classifies listing risk from margin, competition, and rank.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AnalysisResult is one row's profitability verdict. A re-run of the same
// row supersedes the previous result; results are never merged.
type AnalysisResult struct {
	ID               string           `gorm:"type:text;primaryKey" json:"id"`
	JobID            string           `gorm:"type:text;not null;uniqueIndex:idx_results_job_row" json:"job_id"`
	TenantID         string           `gorm:"type:text;not null;index:idx_results_tenant" json:"tenant_id"`
	RowIndex         int              `gorm:"not null;uniqueIndex:idx_results_job_row" json:"row_index"`
	Code             string           `gorm:"type:text;not null;index:idx_results_code" json:"code"`
	ASIN             string           `gorm:"type:text" json:"asin,omitempty"`
	ResolutionStatus ResolutionStatus `gorm:"type:text" json:"resolution_status"`
	Cost             float64          `json:"cost"`
	SellPrice        float64          `json:"sell_price"`
	FeesTotal        float64          `json:"fees_total"`
	Profit           float64          `json:"profit"`
	ROI              *float64         `json:"roi"`
	Margin           *float64         `json:"margin"`
	BreakEven        float64          `json:"break_even"`
	Tier             Tier             `gorm:"type:text;index:idx_results_tier" json:"tier"`
	IsProfitable     bool             `json:"is_profitable"`
	RiskLevel        RiskLevel        `gorm:"type:text" json:"risk_level"`
	SellerCount      int              `json:"seller_count"`
	SalesRank        int              `json:"sales_rank"`
	CreatedAt        time.Time        `json:"created_at"`
}

// TableName returns the database table name for AnalysisResult.
func (AnalysisResult) TableName() string {
	return "analysis_results"
}
