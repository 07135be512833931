package ingest

import (
	"strings"
	"testing"
)

func TestParseWithHeaderMapping(t *testing.T) {
	csv := "UPC,Description,Cost,Pack\n" +
		"036000291452,Widget,4.99,6\n" +
		"0-36000-29145-3,Other widget,$1234.50,\n"

	p := NewParser()
	result, err := p.Parse(strings.NewReader(csv), ColumnMapping{
		CodeColumn:     "upc",
		CostColumn:     "Cost",
		PackSizeColumn: "Pack",
		HasHeader:      true,
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(result.Rows) != 2 || result.Skipped != 0 {
		t.Fatalf("rows = %d, skipped = %d, want 2/0", len(result.Rows), result.Skipped)
	}

	first := result.Rows[0]
	if first.Code != "036000291452" || first.Cost != 4.99 || first.PackSize != 6 || first.RowIndex != 0 {
		t.Errorf("first row = %+v", first)
	}
	second := result.Rows[1]
	if second.Code != "036000291453" {
		t.Errorf("dashes should be stripped, got %q", second.Code)
	}
	if second.Cost != 1234.50 {
		t.Errorf("cost with symbol and separator = %v, want 1234.50", second.Cost)
	}
}

func TestParseRejectsBadRowsAtBoundary(t *testing.T) {
	csv := ",5.00\n" + // missing code
		"036000291452,0\n" + // zero cost
		"036000291452,-3\n" + // negative cost
		"036000291452,abc\n" + // unparseable cost
		"036000291452,5.00\n" // valid

	p := NewParser()
	result, err := p.Parse(strings.NewReader(csv), ColumnMapping{
		CodeColumn: "0",
		CostColumn: "1",
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(result.Rows))
	}
	if result.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", result.Skipped)
	}
	if len(result.Rejected) != 4 {
		t.Fatalf("rejected = %d, want 4", len(result.Rejected))
	}
	if result.Rejected[0].Reason != "missing product code" {
		t.Errorf("first rejection reason = %q", result.Rejected[0].Reason)
	}
	// Row indexes are file positions, not positions among kept rows.
	if result.Rows[0].RowIndex != 4 {
		t.Errorf("kept row index = %d, want 4", result.Rows[0].RowIndex)
	}
}

func TestParseUnknownColumn(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(strings.NewReader("UPC,Cost\n1,2\n"), ColumnMapping{
		CodeColumn: "Sku",
		CostColumn: "Cost",
		HasHeader:  true,
	})
	if err == nil {
		t.Fatal("expected an error for an unmapped column")
	}
}

func TestParseEmptyFile(t *testing.T) {
	p := NewParser()
	result, err := p.Parse(strings.NewReader(""), ColumnMapping{CodeColumn: "0", CostColumn: "1"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(result.Rows) != 0 || result.Skipped != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestValidUPC(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"036000291452", true},
		{"12345678", true},
		{"12345678901234", true},
		{"1234567", false},
		{"123456789012345", false},
		{"03600029145X", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := ValidUPC(tc.code); got != tc.want {
			t.Errorf("ValidUPC(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
