// Package classify assigns each document exactly one authority level and a
// document type within it. The decision table is ordered and first-match-wins,
// so classification is total and deterministic: explicit legal-instrument
// language outranks organizational citations, which outrank generic titles.
package classify

import (
	"strings"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

type Result struct {
	Level        domain.Level        `json:"level"`
	DocumentType domain.DocumentType `json:"document_type"`
	Rule         string              `json:"rule"`
}

type input struct {
	title string // lowercased
	body  string // lowercased
	raw   string // original title, for anchored pattern matching
}

type rule struct {
	name    string
	matches func(in input) bool
	resolve func(in input) domain.DocumentType
}

type Classifier struct {
	rules *rules.Ruleset
	table []rule
}

func New(rs *rules.Ruleset) *Classifier {
	c := &Classifier{rules: rs}
	c.table = []rule{
		{
			name: "national_law",
			matches: func(in input) bool {
				return rs.LawTitlePattern != nil &&
					rs.LawTitlePattern.MatchString(in.raw) &&
					rules.ContainsAny(in.body, rs.LegislatureKeywords)
			},
			resolve: func(input) domain.DocumentType { return domain.TypeLaw },
		},
		{
			name: "administrative_regulation",
			matches: func(in input) bool {
				return rules.ContainsAny(in.title, rs.RegulationTitleKeywords) &&
					rules.ContainsAny(in.body, rs.CentralExecutiveKeywords)
			},
			resolve: func(input) domain.DocumentType { return domain.TypeAdministrativeRegulation },
		},
		{
			name: "ministry_citation",
			matches: func(in input) bool {
				for _, re := range rs.MinistryCitationPatterns {
					if re.MatchString(in.raw) || re.MatchString(in.body) {
						return true
					}
				}
				return false
			},
			resolve: func(in input) domain.DocumentType {
				if rules.ContainsAny(in.title, rs.AnnouncementKeywords) {
					return domain.TypeAnnouncement
				}
				return domain.TypeFiscalDocument
			},
		},
		{
			name: "measures",
			matches: func(in input) bool {
				return rules.ContainsAny(in.title, rs.MeasureTitleKeywords)
			},
			resolve: func(input) domain.DocumentType { return domain.TypeNormativeDocument },
		},
		{
			name: "interpretation",
			matches: func(in input) bool {
				return rules.ContainsAny(in.title, rs.InterpretationTitleKeywords) ||
					rules.ContainsAny(in.title, rs.QATitleKeywords)
			},
			resolve: func(in input) domain.DocumentType {
				if rules.ContainsAny(in.title, rs.QATitleKeywords) {
					return domain.TypeQA
				}
				return domain.TypeInterpretation
			},
		},
	}
	return c
}

// Classify walks the table in order and returns on the first matching rule.
// The default rule guarantees a result for every input.
func (c *Classifier) Classify(title, body string) Result {
	in := input{
		title: strings.ToLower(title),
		body:  strings.ToLower(body),
		raw:   strings.TrimSpace(title),
	}

	for _, r := range c.table {
		if r.matches(in) {
			docType := r.resolve(in)
			return Result{Level: docType.Level(), DocumentType: docType, Rule: r.name}
		}
	}
	return Result{
		Level:        domain.LevelNormative,
		DocumentType: domain.TypeNormativeDocument,
		Rule:         "default",
	}
}
