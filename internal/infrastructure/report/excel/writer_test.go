package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/policykb/taxkb/internal/core/domain"
)

func TestWriteProducesReadableWorkbook(t *testing.T) {
	report := &domain.QualityReport{
		GeneratedAt: time.Date(2026, time.August, 25, 12, 0, 0, 0, time.UTC),
		Total:       3,
		CountByLevel: map[domain.Level]int{
			domain.LevelLaw:         1,
			domain.LevelMinisterial: 2,
		},
		CountByCategory: map[domain.TaxCategory]int{
			domain.CategoryEntity: 3,
		},
		AverageScore: 71.5,
		SubScores: map[string]float64{
			"authority":    90,
			"completeness": 80,
		},
		OverallGrade:       domain.GradeC,
		Issues:             []string{"document number coverage is low (1/3)"},
		WithParent:         2,
		WithChain:          2,
		WithDocumentNumber: 1,
	}

	var buf bytes.Buffer
	if err := NewWriter().Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	want := map[string]bool{"Summary": false, "By Level": false, "Issues": false}
	for _, name := range sheets {
		if _, ok := want[name]; ok {
			want[name] = true
		}
		if name == "Sheet1" {
			t.Fatalf("default sheet must be removed, got %v", sheets)
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("sheet %q missing from %v", name, sheets)
		}
	}

	total, err := f.GetCellValue("Summary", "B2")
	if err != nil || total != "3" {
		t.Fatalf("total cell = %q, err = %v", total, err)
	}
	grade, err := f.GetCellValue("Summary", "B4")
	if err != nil || grade != "C" {
		t.Fatalf("grade cell = %q, err = %v", grade, err)
	}

	level, err := f.GetCellValue("By Level", "A2")
	if err != nil || level != "L1" {
		t.Fatalf("first level cell = %q, err = %v", level, err)
	}

	issue, err := f.GetCellValue("Issues", "A2")
	if err != nil || issue == "" {
		t.Fatalf("issue cell = %q, err = %v", issue, err)
	}
}

func TestWriteEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	report := &domain.QualityReport{
		GeneratedAt:  time.Now().UTC(),
		OverallGrade: domain.GradeD,
	}
	if err := NewWriter().Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("workbook is empty")
	}
}
