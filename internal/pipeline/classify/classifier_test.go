package classify

import (
	"testing"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return New(rs)
}

func TestClassifyDecisionTable(t *testing.T) {
	c := newTestClassifier(t)

	cases := []struct {
		name      string
		title     string
		body      string
		wantLevel domain.Level
		wantType  domain.DocumentType
		wantRule  string
	}{
		{
			name:      "law title plus legislature body",
			title:     "Corporate Income Tax Law",
			body:      "Adopted at the Fifth Session of the National People's Congress.",
			wantLevel: domain.LevelLaw,
			wantType:  domain.TypeLaw,
			wantRule:  "national_law",
		},
		{
			name:      "law title without legislature falls through to regulation",
			title:     "Implementing Regulation for the Corporate Income Tax Law",
			body:      "Promulgated by the State Council.",
			wantLevel: domain.LevelLaw,
			wantType:  domain.TypeAdministrativeRegulation,
			wantRule:  "administrative_regulation",
		},
		{
			name:      "ministry citation with announcement title",
			title:     "Announcement on VAT Credit Refunds",
			body:      "Announcement of the State Taxation Administration, for implementation.",
			wantLevel: domain.LevelMinisterial,
			wantType:  domain.TypeAnnouncement,
			wantRule:  "ministry_citation",
		},
		{
			name:      "ministry citation without announcement title",
			title:     "Notice on Adjusting the VAT Rate",
			body:      "Per MOF [2020] No. 8, the rates below apply from the publication date.",
			wantLevel: domain.LevelMinisterial,
			wantType:  domain.TypeFiscalDocument,
			wantRule:  "ministry_citation",
		},
		{
			name:      "measures title",
			title:     "Administrative Measures for Tax Filing by Non-Residents",
			body:      "The following procedures apply.",
			wantLevel: domain.LevelNormative,
			wantType:  domain.TypeNormativeDocument,
			wantRule:  "measures",
		},
		{
			name:      "interpretation title",
			title:     "Interpretation of the Stamp Duty Law",
			body:      "The provisions are explained as follows.",
			wantLevel: domain.LevelInterpretation,
			wantType:  domain.TypeInterpretation,
			wantRule:  "interpretation",
		},
		{
			name:      "q&a title",
			title:     "Q&A on Individual Income Tax Special Additional Deductions",
			body:      "Q: Who may claim?\nA: Resident taxpayers.",
			wantLevel: domain.LevelInterpretation,
			wantType:  domain.TypeQA,
			wantRule:  "interpretation",
		},
		{
			name:      "no rule matches",
			title:     "Work Plan for the Annual Collection Campaign",
			body:      "Local offices shall organize accordingly.",
			wantLevel: domain.LevelNormative,
			wantType:  domain.TypeNormativeDocument,
			wantRule:  "default",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.title, tc.body)
			if got.Level != tc.wantLevel || got.DocumentType != tc.wantType || got.Rule != tc.wantRule {
				t.Fatalf("Classify(%q) = %+v, want level=%s type=%s rule=%s",
					tc.title, got, tc.wantLevel, tc.wantType, tc.wantRule)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier(t)

	title := "Announcement on Consumption Tax Collection"
	body := "Announcement of the Ministry of Finance."
	first := c.Classify(title, body)
	for i := 0; i < 5; i++ {
		if got := c.Classify(title, body); got != first {
			t.Fatalf("classification changed between runs: %+v vs %+v", got, first)
		}
	}
}
