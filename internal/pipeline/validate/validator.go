// Package validate flags structural issues and removes duplicate documents.
// Issues block validity and reduce the score; warnings are informational.
// Cross-document violations reflect corpus incompleteness and are surfaced
// in the report, never raised as runtime faults.
package validate

import (
	"fmt"
	"sort"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

// Issue histogram keys.
const (
	IssueMissingField = "missing_field"
	IssueBrokenParent = "broken_parent"
	IssueInvalidDates = "invalid_dates"
	IssueShortContent = "short_content"
	IssueUnlinkedQA   = "unlinked_qa"
)

const worstSampleSize = 20

type Validator struct {
	rules *rules.Ruleset
}

func New(rs *rules.Ruleset) *Validator {
	return &Validator{rules: rs}
}

// ValidatePolicy scores one document's structural quality. exists reports
// whether a referenced identity is present in the corpus.
func (v *Validator) ValidatePolicy(doc *domain.PolicyDocument, exists func(id string) bool) domain.ValidationResult {
	var issues, warnings []string
	score := 100

	// Required fields.
	required := []struct {
		name  string
		value string
	}{
		{"id", doc.ID},
		{"title", doc.Title},
		{"source", doc.Source},
		{"origin_url", doc.OriginURL},
		{"level", string(doc.Level)},
		{"document_type", string(doc.DocumentType)},
		{"tax_category", string(doc.TaxCategory)},
	}
	for _, field := range required {
		if field.value == "" {
			issues = append(issues, fmt.Sprintf("missing required field: %s", field.name))
			score -= 5
		}
	}
	if n := len([]rune(doc.Title)); n > 0 && n < 10 {
		issues = append(issues, fmt.Sprintf("title too short: %d chars < 10", n))
		score -= 5
	}

	// Hierarchy links.
	if doc.Level == domain.LevelInterpretation && len(doc.CitedIDs) == 0 && doc.ParentID == "" {
		issues = append(issues, "interpretation document not linked to a source policy")
		score -= 15
	}
	if doc.Level == domain.LevelMinisterial && doc.ParentID == "" {
		warnings = append(warnings, "ministerial document without a parent law")
		score -= 5
	}
	if doc.ParentID != "" && exists != nil && !exists(doc.ParentID) {
		issues = append(issues, fmt.Sprintf("referenced parent does not exist: %s", doc.ParentID))
		score -= 10
	}
	if (doc.Level == domain.LevelMinisterial || doc.Level == domain.LevelNormative) &&
		len(doc.LegislationChain) == 0 {
		warnings = append(warnings, "legislation chain not built")
		score -= 10
	}
	if doc.Region == "" {
		warnings = append(warnings, "region tag missing")
		score -= 3
	}

	// Date ordering. Violations are recorded, not hard failures.
	if doc.PublishDate != nil && doc.EffectiveDate != nil && doc.EffectiveDate.Before(*doc.PublishDate) {
		issues = append(issues, "effective date precedes publish date")
		score -= 5
	}
	if doc.EffectiveDate != nil && doc.ExpiryDate != nil && doc.ExpiryDate.Before(*doc.EffectiveDate) {
		issues = append(issues, "expiry date precedes effective date")
		score -= 5
	}
	if doc.ValidityStatus == "" {
		warnings = append(warnings, "validity status not derived")
		score -= 5
	}

	// Content length.
	switch n := len([]rune(doc.Content)); {
	case n < 100:
		issues = append(issues, fmt.Sprintf("content too short: %d chars < 100", n))
		score -= 10
	case n < 500:
		warnings = append(warnings, fmt.Sprintf("content short: %d chars < 500", n))
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	return domain.ValidationResult{
		Valid:    score >= 60,
		Score:    score,
		Issues:   issues,
		Warnings: warnings,
	}
}

// ValidateAll aggregates per-document validation into the corpus report.
func (v *Validator) ValidateAll(docs []*domain.PolicyDocument) domain.ValidationReport {
	known := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		known[doc.ID] = struct{}{}
	}
	exists := func(id string) bool {
		_, ok := known[id]
		return ok
	}

	report := domain.ValidationReport{
		Total:        len(docs),
		IssuesByType: map[string]int{},
	}

	var offenders []domain.Offender
	for _, doc := range docs {
		result := v.ValidatePolicy(doc, exists)
		if result.Valid {
			report.ValidCount++
		} else {
			report.InvalidCount++
			offenders = append(offenders, domain.Offender{
				ID:     doc.ID,
				Title:  doc.Title,
				Score:  result.Score,
				Issues: result.Issues,
			})
		}
		for _, issue := range result.Issues {
			report.IssuesByType[classifyIssue(issue)]++
		}
	}

	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Score != offenders[j].Score {
			return offenders[i].Score < offenders[j].Score
		}
		return offenders[i].ID < offenders[j].ID
	})
	if len(offenders) > worstSampleSize {
		offenders = offenders[:worstSampleSize]
	}
	report.WorstSample = offenders
	return report
}

func classifyIssue(issue string) string {
	switch {
	case hasPrefix(issue, "missing required field"), hasPrefix(issue, "title too short"):
		return IssueMissingField
	case hasPrefix(issue, "referenced parent"):
		return IssueBrokenParent
	case hasPrefix(issue, "effective date"), hasPrefix(issue, "expiry date"):
		return IssueInvalidDates
	case hasPrefix(issue, "content too short"):
		return IssueShortContent
	case hasPrefix(issue, "interpretation document"):
		return IssueUnlinkedQA
	default:
		return "other"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
