package service

import (
	"errors"

	"github.com/mattgold/scoutline/internal/domain"
)

// Row failure and skip reasons. These are stable strings: the error summary
// deduplicates on them, and dashboards group by them.
const (
	ReasonUPCNotFound   = "upc_not_found"
	ReasonAmbiguousASIN = "ambiguous_asin"
	ReasonLookupFailed  = "lookup_failed"
	ReasonEnrichFailed  = "enrichment_failed"
	ReasonResultWrite   = "result_write_failed"
	ReasonChunkPanic    = "chunk_panicked"
)

// ErrJobNotFound is returned when an operation references an unknown job.
var ErrJobNotFound = errors.New("scan job not found")

// ErrJobNotResident is returned when Run or Cancel needs the job's in-memory
// row set but the job was submitted by another process instance.
var ErrJobNotResident = errors.New("scan job rows are not resident in this process")

// buildSummary collapses row errors into a bounded, deduplicated summary.
// Groups are keyed by reason, keep the first row the reason was seen on, and
// count every later occurrence. Once the group limit is reached, new reasons
// are dropped but existing groups keep counting.
func buildSummary(rowErrors []domain.RowError, maxGroups int) domain.ErrorSummary {
	if maxGroups <= 0 {
		maxGroups = 25
	}
	summary := domain.ErrorSummary{}
	index := make(map[string]int, maxGroups)
	for _, re := range rowErrors {
		if i, ok := index[re.Reason]; ok {
			summary[i].Count++
			continue
		}
		if len(summary) >= maxGroups {
			continue
		}
		index[re.Reason] = len(summary)
		summary = append(summary, domain.ErrorGroup{
			Reason:    re.Reason,
			SampleRow: re.RowIndex,
			Count:     1,
		})
	}
	return summary
}
