// Package excel renders the corpus quality report as a workbook for review
// outside the API.
package excel

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/policykb/taxkb/internal/core/domain"
)

const (
	summarySheet = "Summary"
	levelSheet   = "By Level"
	issueSheet   = "Issues"
)

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Write(out io.Writer, report *domain.QualityReport) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := writeSummary(f, report); err != nil {
		return err
	}
	if err := writeLevels(f, report); err != nil {
		return err
	}
	if err := writeIssues(f, report); err != nil {
		return err
	}

	// The default sheet is replaced by Summary.
	index, err := f.GetSheetIndex(summarySheet)
	if err != nil {
		return fmt.Errorf("get summary sheet index: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, report *domain.QualityReport) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rows := [][]any{
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Total Documents", report.Total},
		{"Average Score", fmt.Sprintf("%.1f", report.AverageScore)},
		{"Overall Grade", string(report.OverallGrade)},
		{"With Parent", report.WithParent},
		{"With Chain", report.WithChain},
		{"With Document Number", report.WithDocumentNumber},
	}

	names := make([]string, 0, len(report.SubScores))
	for name := range report.SubScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, []any{"Avg " + name, fmt.Sprintf("%.1f", report.SubScores[name])})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell name: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}

func writeLevels(f *excelize.File, report *domain.QualityReport) error {
	if _, err := f.NewSheet(levelSheet); err != nil {
		return fmt.Errorf("create level sheet: %w", err)
	}

	header := []any{"Level", "Count"}
	if err := f.SetSheetRow(levelSheet, "A1", &header); err != nil {
		return fmt.Errorf("write level header: %w", err)
	}

	levels := make([]string, 0, len(report.CountByLevel))
	for level := range report.CountByLevel {
		levels = append(levels, string(level))
	}
	sort.Strings(levels)

	for i, level := range levels {
		row := []any{level, report.CountByLevel[domain.Level(level)]}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("level cell name: %w", err)
		}
		if err := f.SetSheetRow(levelSheet, cell, &row); err != nil {
			return fmt.Errorf("write level row: %w", err)
		}
	}

	offset := len(levels) + 3
	catHeader := []any{"Tax Category", "Count"}
	cell, err := excelize.CoordinatesToCellName(1, offset)
	if err != nil {
		return fmt.Errorf("category header cell name: %w", err)
	}
	if err := f.SetSheetRow(levelSheet, cell, &catHeader); err != nil {
		return fmt.Errorf("write category header: %w", err)
	}

	categories := make([]string, 0, len(report.CountByCategory))
	for category := range report.CountByCategory {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for i, category := range categories {
		row := []any{category, report.CountByCategory[domain.TaxCategory(category)]}
		cell, err := excelize.CoordinatesToCellName(1, offset+1+i)
		if err != nil {
			return fmt.Errorf("category cell name: %w", err)
		}
		if err := f.SetSheetRow(levelSheet, cell, &row); err != nil {
			return fmt.Errorf("write category row: %w", err)
		}
	}
	return nil
}

func writeIssues(f *excelize.File, report *domain.QualityReport) error {
	if _, err := f.NewSheet(issueSheet); err != nil {
		return fmt.Errorf("create issue sheet: %w", err)
	}

	header := []any{"Issue"}
	if err := f.SetSheetRow(issueSheet, "A1", &header); err != nil {
		return fmt.Errorf("write issue header: %w", err)
	}
	for i, issue := range report.Issues {
		row := []any{issue}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("issue cell name: %w", err)
		}
		if err := f.SetSheetRow(issueSheet, cell, &row); err != nil {
			return fmt.Errorf("write issue row: %w", err)
		}
	}
	return nil
}
