package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return New(rs)
}

func cleanDocument() *domain.PolicyDocument {
	publish := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	effective := time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC)
	return &domain.PolicyDocument{
		ID:             "law-1",
		Title:          "Corporate Income Tax Law",
		Source:         "npc",
		OriginURL:      "https://example.org/law-1",
		Level:          domain.LevelLaw,
		DocumentType:   domain.TypeLaw,
		TaxCategory:    domain.CategoryEntity,
		Region:         "national",
		ValidityStatus: domain.ValidityValid,
		PublishDate:    &publish,
		EffectiveDate:  &effective,
		Content:        strings.Repeat("x", 600),
	}
}

func TestValidatePolicyCleanDocumentScoresFull(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidatePolicy(cleanDocument(), nil)
	if !result.Valid || result.Score != 100 {
		t.Fatalf("result = %+v, want valid with score 100", result)
	}
	if len(result.Issues) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("unexpected findings: issues=%v warnings=%v", result.Issues, result.Warnings)
	}
}

func TestValidatePolicyUnlinkedInterpretation(t *testing.T) {
	v := newTestValidator(t)

	doc := cleanDocument()
	doc.Level = domain.LevelInterpretation
	doc.DocumentType = domain.TypeQA

	result := v.ValidatePolicy(doc, nil)
	if result.Score != 85 {
		t.Fatalf("score = %d, want 85", result.Score)
	}
	if len(result.Issues) != 1 || !strings.Contains(result.Issues[0], "not linked") {
		t.Fatalf("issues = %v", result.Issues)
	}
	if !result.Valid {
		t.Fatalf("a single linkage issue must not invalidate the document")
	}
}

func TestValidatePolicyMinisterialWarnings(t *testing.T) {
	v := newTestValidator(t)

	doc := cleanDocument()
	doc.Level = domain.LevelMinisterial
	doc.DocumentType = domain.TypeFiscalDocument
	doc.Region = ""

	// No parent, no chain, no region: three warnings, no issues.
	result := v.ValidatePolicy(doc, nil)
	if len(result.Issues) != 0 {
		t.Fatalf("issues = %v, want none", result.Issues)
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("warnings = %v, want 3", result.Warnings)
	}
	if result.Score != 82 {
		t.Fatalf("score = %d, want 82", result.Score)
	}
}

func TestValidatePolicyBrokenParentReference(t *testing.T) {
	v := newTestValidator(t)

	doc := cleanDocument()
	doc.Level = domain.LevelMinisterial
	doc.DocumentType = domain.TypeFiscalDocument
	doc.ParentID = "ghost"
	doc.LegislationChain = []string{"law-1", "ghost"}

	result := v.ValidatePolicy(doc, func(id string) bool { return false })
	if result.Score != 90 {
		t.Fatalf("score = %d, want 90", result.Score)
	}
	if len(result.Issues) != 1 || !strings.Contains(result.Issues[0], "ghost") {
		t.Fatalf("issues = %v", result.Issues)
	}

	// Same document with a resolvable parent raises nothing.
	result = v.ValidatePolicy(doc, func(id string) bool { return true })
	if len(result.Issues) != 0 || result.Score != 100 {
		t.Fatalf("resolvable parent: %+v", result)
	}
}

func TestValidatePolicyDateOrdering(t *testing.T) {
	v := newTestValidator(t)

	doc := cleanDocument()
	early := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	doc.EffectiveDate = &early

	result := v.ValidatePolicy(doc, nil)
	if len(result.Issues) != 1 || !strings.Contains(result.Issues[0], "effective date precedes") {
		t.Fatalf("issues = %v", result.Issues)
	}
	if result.Score != 95 {
		t.Fatalf("score = %d, want 95", result.Score)
	}
}

func TestValidatePolicyContentLength(t *testing.T) {
	v := newTestValidator(t)

	doc := cleanDocument()
	doc.Content = strings.Repeat("x", 50)
	result := v.ValidatePolicy(doc, nil)
	if result.Score != 90 || len(result.Issues) != 1 {
		t.Fatalf("very short content: %+v", result)
	}

	doc.Content = strings.Repeat("x", 300)
	result = v.ValidatePolicy(doc, nil)
	if result.Score != 95 || len(result.Warnings) != 1 {
		t.Fatalf("short content: %+v", result)
	}
}

func TestValidateAllAggregatesHistogram(t *testing.T) {
	v := newTestValidator(t)

	bad := &domain.PolicyDocument{ID: "bad-1"}
	docs := []*domain.PolicyDocument{cleanDocument(), bad}

	report := v.ValidateAll(docs)
	if report.Total != 2 || report.ValidCount != 1 || report.InvalidCount != 1 {
		t.Fatalf("counts = %+v", report)
	}
	// bad-1: six empty required fields plus title length and short content.
	if report.IssuesByType[IssueMissingField] != 6 {
		t.Fatalf("missing_field = %d, want 6", report.IssuesByType[IssueMissingField])
	}
	if report.IssuesByType[IssueShortContent] != 1 {
		t.Fatalf("short_content = %d, want 1", report.IssuesByType[IssueShortContent])
	}
	if len(report.WorstSample) != 1 || report.WorstSample[0].ID != "bad-1" {
		t.Fatalf("worst sample = %+v", report.WorstSample)
	}
}

func TestValidateAllResolvesParentsAgainstCorpus(t *testing.T) {
	v := newTestValidator(t)

	parent := cleanDocument()
	child := cleanDocument()
	child.ID = "circ-1"
	child.Title = "Notice on Corporate Income Tax Filing"
	child.Level = domain.LevelMinisterial
	child.DocumentType = domain.TypeFiscalDocument
	child.ParentID = parent.ID
	child.LegislationChain = []string{"circ-1", parent.ID}

	report := v.ValidateAll([]*domain.PolicyDocument{parent, child})
	if report.InvalidCount != 0 {
		t.Fatalf("report = %+v, want no invalid documents", report)
	}
	if report.IssuesByType[IssueBrokenParent] != 0 {
		t.Fatalf("broken_parent = %d, want 0", report.IssuesByType[IssueBrokenParent])
	}
}
