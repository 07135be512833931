package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattgold/scoutline/internal/domain"
)

// ColumnMapping tells the parser which supplier-file columns hold the UPC,
// the wholesale cost, and optionally the pack size. Columns can be named
// (matched against the header row, case-insensitive) or given as zero-based
// indexes.
type ColumnMapping struct {
	CodeColumn     string
	CostColumn     string
	PackSizeColumn string
	HasHeader      bool
}

// Result is the outcome of parsing a supplier file: normalized rows ready
// for submission, plus the rows rejected at the boundary. Rejected rows are
// counted as skipped by the job; they never enter the pipeline.
type Result struct {
	Rows     []domain.ProductRow
	Skipped  int
	Rejected []domain.RowError
}

// Parser converts raw supplier files into normalized product rows.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a CSV supplier list and applies the column mapping. Rows with
// a missing code or non-positive cost are rejected and counted as skipped;
// everything else is normalized and kept in file order.
// Parameters:
//   - r: CSV content.
//   - mapping: column mapping configuration.
// Returns:
//   - *Result: normalized rows and boundary rejections.
//   - error: non-nil if the file itself is unreadable or the mapping cannot
//     be applied.
func (p *Parser) Parse(r io.Reader, mapping ColumnMapping) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // supplier exports are ragged more often than not
	reader.TrimLeadingSpace = true

	var header []string
	if mapping.HasHeader {
		record, err := reader.Read()
		if err == io.EOF {
			return &Result{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header row: %w", err)
		}
		header = record
	}

	codeIdx, err := resolveColumn(mapping.CodeColumn, header)
	if err != nil {
		return nil, fmt.Errorf("code column: %w", err)
	}
	costIdx, err := resolveColumn(mapping.CostColumn, header)
	if err != nil {
		return nil, fmt.Errorf("cost column: %w", err)
	}
	packIdx := -1
	if mapping.PackSizeColumn != "" {
		packIdx, err = resolveColumn(mapping.PackSizeColumn, header)
		if err != nil {
			return nil, fmt.Errorf("pack size column: %w", err)
		}
	}

	result := &Result{}
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowIndex, err)
		}

		row, reason := normalizeRow(record, rowIndex, codeIdx, costIdx, packIdx)
		if reason != "" {
			result.Skipped++
			result.Rejected = append(result.Rejected, domain.RowError{
				RowIndex: rowIndex,
				Code:     field(record, codeIdx),
				Reason:   reason,
			})
		} else {
			result.Rows = append(result.Rows, row)
		}
		rowIndex++
	}

	return result, nil
}

// normalizeRow applies the mapping to one record. A non-empty reason means
// the row is rejected at the boundary.
func normalizeRow(record []string, rowIndex, codeIdx, costIdx, packIdx int) (domain.ProductRow, string) {
	code := NormalizeUPC(field(record, codeIdx))
	if code == "" {
		return domain.ProductRow{}, "missing product code"
	}

	costRaw := field(record, costIdx)
	cost, err := parseMoney(costRaw)
	if err != nil {
		return domain.ProductRow{}, "unparseable cost: " + costRaw
	}
	if cost <= 0 {
		return domain.ProductRow{}, "non-positive cost"
	}

	row := domain.ProductRow{RowIndex: rowIndex, Code: code, Cost: cost}
	if packIdx >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(field(record, packIdx))); err == nil && n > 0 {
			row.PackSize = n
		}
	}
	return row, ""
}

// resolveColumn turns a column spec into a record index: a number is used
// directly, anything else is matched against the header.
func resolveColumn(spec string, header []string) (int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return -1, fmt.Errorf("no column specified")
	}
	if idx, err := strconv.Atoi(spec); err == nil {
		if idx < 0 {
			return -1, fmt.Errorf("negative column index %d", idx)
		}
		return idx, nil
	}
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), spec) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q not found in header", spec)
}

// NormalizeUPC strips spaces and dashes from a raw code.
// Parameters:
//   - raw: code text as it appears in the file.
// Returns:
//   - string: normalized code, possibly empty.
func NormalizeUPC(raw string) string {
	var b strings.Builder
	for _, c := range raw {
		if c == ' ' || c == '-' || c == '\t' {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ValidUPC reports whether a normalized code looks like a UPC/EAN: all
// digits, 8 to 14 of them.
func ValidUPC(code string) bool {
	if len(code) < 8 || len(code) > 14 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseMoney parses a cost cell, tolerating currency symbols and thousands
// separators.
func parseMoney(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty cost")
	}
	return strconv.ParseFloat(cleaned, 64)
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
