// Package score computes the bounded composite quality score feeding
// downstream ranking.
package score

import (
	"github.com/policykb/taxkb/internal/core/domain"
)

// Sub-score weights, in percent. They sum to 100.
const (
	weightCompleteness = 25
	weightAuthority    = 30
	weightRelationship = 20
	weightTimeliness   = 15
	weightContentDepth = 10
)

// relatedCredit is the partial relationship credit per related link, capped.
const (
	relatedCredit    = 10
	relatedCreditMax = 40
)

// Breakdown carries the weighted sub-scores behind a composite.
type Breakdown struct {
	Completeness int `json:"completeness"`
	Authority    int `json:"authority"`
	Relationship int `json:"relationship"`
	Timeliness   int `json:"timeliness"`
	ContentDepth int `json:"content_depth"`

	Composite int          `json:"composite"`
	Grade     domain.Grade `json:"grade"`
}

type Scorer struct{}

func New() *Scorer {
	return &Scorer{}
}

// Score recomputes the composite from the document's current fields. It is
// called again whenever a contributing field changes.
func (s *Scorer) Score(doc *domain.PolicyDocument) Breakdown {
	b := Breakdown{
		Completeness: completeness(doc),
		Authority:    doc.Level.AuthorityScore(),
		Relationship: relationship(doc),
		Timeliness:   timeliness(doc.ValidityStatus),
		ContentDepth: contentDepth(len([]rune(doc.Content))),
	}

	weighted := weightCompleteness*b.Completeness +
		weightAuthority*b.Authority +
		weightRelationship*b.Relationship +
		weightTimeliness*b.Timeliness +
		weightContentDepth*b.ContentDepth
	b.Composite = (weighted + 50) / 100

	if b.Composite > 100 {
		b.Composite = 100
	}
	if b.Composite < 0 {
		b.Composite = 0
	}
	b.Grade = domain.GradeFor(b.Composite)
	return b
}

// completeness is the share of required fields present: title of at least
// 10 characters, source, level, type, category.
func completeness(doc *domain.PolicyDocument) int {
	present := 0
	if len([]rune(doc.Title)) >= 10 {
		present++
	}
	if doc.Source != "" {
		present++
	}
	if doc.Level != "" {
		present++
	}
	if doc.DocumentType != "" {
		present++
	}
	if doc.TaxCategory != "" {
		present++
	}
	return present * 100 / 5
}

// relationship grants full credit for a resolved parent with a real chain,
// else partial credit per related-document link.
func relationship(doc *domain.PolicyDocument) int {
	if doc.ParentID != "" && len(doc.LegislationChain) > 1 {
		return 100
	}
	credit := len(doc.RelatedIDs) * relatedCredit
	if credit > relatedCreditMax {
		credit = relatedCreditMax
	}
	return credit
}

func timeliness(status domain.ValidityStatus) int {
	switch status {
	case domain.ValidityValid:
		return 100
	case domain.ValidityPartial:
		return 60
	case domain.ValidityUnknown:
		return 40
	case domain.ValidityExpired:
		return 0
	default:
		return 40
	}
}

// contentDepth is a step function over content length.
func contentDepth(length int) int {
	switch {
	case length >= 2000:
		return 100
	case length >= 1000:
		return 80
	case length >= 500:
		return 60
	case length >= 200:
		return 40
	case length > 0:
		return 20
	default:
		return 0
	}
}
