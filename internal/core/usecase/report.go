package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
)

// QualityReportUseCase builds the corpus-wide quality summary consumed by
// operational tooling.
type QualityReportUseCase struct {
	repo   ports.PolicyRepository
	scorer QualityScorer
}

func NewQualityReportUseCase(repo ports.PolicyRepository, scorer QualityScorer) *QualityReportUseCase {
	return &QualityReportUseCase{repo: repo, scorer: scorer}
}

func (uc *QualityReportUseCase) Build(ctx context.Context) (*domain.QualityReport, error) {
	docs, err := uc.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	report := &domain.QualityReport{
		GeneratedAt:     time.Now().UTC(),
		Total:           len(docs),
		CountByLevel:    map[domain.Level]int{},
		CountByCategory: map[domain.TaxCategory]int{},
		SubScores:       map[string]float64{},
	}
	if len(docs) == 0 {
		report.OverallGrade = domain.GradeD
		return report, nil
	}

	var scoreSum int
	subSums := map[string]int{}
	for _, doc := range docs {
		report.CountByLevel[doc.Level]++
		report.CountByCategory[doc.TaxCategory]++
		if doc.ParentID != "" {
			report.WithParent++
		}
		if len(doc.LegislationChain) > 1 {
			report.WithChain++
		}
		if doc.DocumentNumber != "" {
			report.WithDocumentNumber++
		}

		breakdown := uc.scorer.Score(doc)
		scoreSum += breakdown.Composite
		subSums["completeness"] += breakdown.Completeness
		subSums["authority"] += breakdown.Authority
		subSums["relationship"] += breakdown.Relationship
		subSums["timeliness"] += breakdown.Timeliness
		subSums["content_depth"] += breakdown.ContentDepth
	}

	n := float64(len(docs))
	report.AverageScore = float64(scoreSum) / n
	for name, sum := range subSums {
		report.SubScores[name] = float64(sum) / n
	}
	report.OverallGrade = domain.GradeFor(int(report.AverageScore))
	report.Issues = describeIssues(report)
	return report, nil
}

func describeIssues(r *domain.QualityReport) []string {
	var issues []string
	if r.WithParent*2 < r.Total {
		issues = append(issues, fmt.Sprintf("fewer than half of documents have a resolved parent (%d/%d)", r.WithParent, r.Total))
	}
	if r.WithDocumentNumber*2 < r.Total {
		issues = append(issues, fmt.Sprintf("document number coverage is low (%d/%d)", r.WithDocumentNumber, r.Total))
	}
	if r.SubScores["content_depth"] < 50 {
		issues = append(issues, "average content depth below the 500-character step")
	}
	sort.Strings(issues)
	return issues
}
