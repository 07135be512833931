package analyzer

import "github.com/mattgold/scoutline/internal/domain"

// ROI tier thresholds, in percent. These boundaries are load-bearing:
// existing verdicts must reclassify identically on re-runs.
const (
	roiExcellent  = 50.0
	roiGood       = 30.0
	roiProfitable = 15.0
)

// Risk thresholds.
const (
	marginLowRisk     = 40.0
	marginHighRisk    = 20.0
	sellersLowRisk    = 10
	sellersHighRisk   = 50
	salesRankLowRisk  = 10000
	salesRankHighRisk = 100000
)

// Input carries everything the classifier needs for one row.
type Input struct {
	Cost        float64
	SellPrice   float64
	FeesTotal   float64
	SellerCount int
	SalesRank   int
}

// Verdict is the computed profitability classification for one row.
type Verdict struct {
	Profit       float64
	ROI          *float64 // nil when cost <= 0
	Margin       *float64 // nil when sell price <= 0
	BreakEven    float64
	Tier         domain.Tier
	IsProfitable bool
	RiskLevel    domain.RiskLevel
}

// Classify computes the profitability verdict for a single row. Pure
// function: no external calls, no mutable state.
// Parameters:
//   - in: cost, sell price, total fees, and competition/rank signals.
// Returns:
//   - Verdict: profit, ROI, margin, break-even, tier, and risk classification.
func Classify(in Input) Verdict {
	profit := in.SellPrice - in.FeesTotal - in.Cost

	var roi, margin *float64
	if in.Cost > 0 {
		v := profit / in.Cost * 100
		roi = &v
	}
	if in.SellPrice > 0 {
		v := profit / in.SellPrice * 100
		margin = &v
	}

	return Verdict{
		Profit:       profit,
		ROI:          roi,
		Margin:       margin,
		BreakEven:    in.Cost + in.FeesTotal,
		Tier:         tierFor(roi),
		IsProfitable: roi != nil && *roi >= roiProfitable && profit > 0,
		RiskLevel:    riskFor(margin, in.SellerCount, in.SalesRank),
	}
}

// tierFor maps ROI to a tier. A nil ROI (cost <= 0) is unprofitable.
func tierFor(roi *float64) domain.Tier {
	if roi == nil {
		return domain.TierUnprofitable
	}
	switch {
	case *roi >= roiExcellent:
		return domain.TierExcellent
	case *roi >= roiGood:
		return domain.TierGood
	case *roi >= roiProfitable:
		return domain.TierMarginal
	default:
		return domain.TierUnprofitable
	}
}

// riskFor classifies risk. Low requires every low-risk signal; high triggers
// on any high-risk signal; everything else is medium.
func riskFor(margin *float64, sellerCount, salesRank int) domain.RiskLevel {
	m := 0.0
	if margin != nil {
		m = *margin
	}
	if m > marginLowRisk && sellerCount < sellersLowRisk && salesRank < salesRankLowRisk {
		return domain.RiskLow
	}
	if m < marginHighRisk || sellerCount > sellersHighRisk || salesRank > salesRankHighRisk {
		return domain.RiskHigh
	}
	return domain.RiskMedium
}
