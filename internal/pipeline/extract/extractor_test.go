package extract

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return New(rs)
}

func TestDocumentNumberFormats(t *testing.T) {
	e := newTestExtractor(t)

	cases := []struct {
		text string
		want string
	}{
		{"Caishui MOF [2019] No. 13 on small-scale taxpayers", "Caishui MOF [2019] No. 13"},
		{"see Caishui [2016] No. 36 for the pilot rules", "Caishui [2016] No. 36"},
		{"Per MOF [2020] No. 8 the threshold is adjusted", "MOF [2020] No. 8"},
		{"issued as MOF 〔2019〕 No. 13 by the ministry", "MOF [2019] No. 13"},
		{"promulgated by Decree No. 691 of the State Council", "Decree No. 691 of the State Council"},
		{"see Announcement No. 3 of 2021 for details", "Announcement No. 3 of 2021"},
		{"per Circular 2020 No. 45, the filing deadline", "Circular 2020 No. 45"},
		{"no citation format appears in this text", ""},
	}
	for _, tc := range cases {
		if got := e.documentNumber(tc.text); got != tc.want {
			t.Fatalf("documentNumber(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestDocumentNumberStableAcrossSentencePosition(t *testing.T) {
	e := newTestExtractor(t)

	lead := e.documentNumber("MOF [2020] No. 8 adjusts the filing threshold.")
	mid := e.documentNumber("Under MOF [2020] No. 8, the filing threshold is adjusted.")
	if lead != "MOF [2020] No. 8" {
		t.Fatalf("sentence-initial citation = %q", lead)
	}
	if mid != lead {
		t.Fatalf("mid-sentence citation = %q, want %q", mid, lead)
	}
}

func TestTaxTypesAreSortedAndDefaulted(t *testing.T) {
	e := newTestExtractor(t)

	got := e.taxTypes("The value-added tax and corporate income tax treatment of mergers")
	want := []string{"corporate_income_tax", "vat"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("taxTypes = %v, want %v", got, want)
	}

	if got := e.taxTypes("general administrative guidance"); !reflect.DeepEqual(got, []string{"other"}) {
		t.Fatalf("unmatched text = %v, want [other]", got)
	}
}

func TestTaxCategoryPrecedence(t *testing.T) {
	e := newTestExtractor(t)

	// International beats procedural when both match.
	if got := e.taxCategory("transfer pricing documentation and invoice requirements"); got != domain.CategoryInternational {
		t.Fatalf("category = %s, want international", got)
	}
	if got := e.taxCategory("invoice issuance and tax filing obligations"); got != domain.CategoryProcedural {
		t.Fatalf("category = %s, want procedural", got)
	}
	if got := e.taxCategory("rates applicable to small enterprises"); got != domain.CategoryEntity {
		t.Fatalf("category = %s, want entity", got)
	}
}

func TestAuthorityDetection(t *testing.T) {
	e := newTestExtractor(t)

	cases := []struct {
		body          string
		wantAuthority string
		wantType      string
	}{
		{"Adopted at the session of the National People's Congress.", "national legislature", "legislative"},
		{"Promulgated by the State Council.", "central executive", "executive"},
		{"Notice of the Ministry of Finance on tax policy.", "ministry of finance", "ministerial"},
		{"Issued by the State Taxation Administration.", "state taxation administration", "ministerial"},
		{"The municipal tax bureau announces the following.", "local tax bureau", "local"},
		{"No issuer named anywhere.", "", ""},
	}
	for _, tc := range cases {
		authority, authType := e.authority(tc.body)
		if authority != tc.wantAuthority || authType != tc.wantType {
			t.Fatalf("authority(%q) = (%q, %q), want (%q, %q)",
				tc.body, authority, authType, tc.wantAuthority, tc.wantType)
		}
	}
}

func TestKeyPointsFromArticles(t *testing.T) {
	e := newTestExtractor(t)

	body := "Article 1. Taxpayers shall file monthly value-added tax returns.\n" +
		"Article 2. The applicable rate for general taxpayers is thirteen percent.\n" +
		"Article 3. Small-scale taxpayers may apply the simplified computation method."

	points := e.keyPoints(body)
	if len(points) != 3 {
		t.Fatalf("got %d key points, want 3: %v", len(points), points)
	}
	if !strings.HasPrefix(points[0], "Taxpayers shall file") {
		t.Fatalf("unexpected first point: %q", points[0])
	}
}

func TestKeyPointsCappedAtConfiguredCount(t *testing.T) {
	e := newTestExtractor(t)

	var b strings.Builder
	for i := 1; i <= 14; i++ {
		fmt.Fprintf(&b, "Article %d. This clause sets out a distinct filing obligation number %d.\n", i, i)
	}

	points := e.keyPoints(b.String())
	if len(points) != 10 {
		t.Fatalf("got %d key points, want cap of 10", len(points))
	}
}

func TestKeyPointsParagraphFallback(t *testing.T) {
	e := newTestExtractor(t)

	body := "Refunds are processed within thirty working days of approval, and the competent authority " +
		"shall notify the applicant in writing once the review of the submitted materials has been completed in full.\n\n" +
		"Applications must include the original invoice, the bank account details of the applicant, and a copy of " +
		"the registration certificate issued by the competent administration for market regulation."

	points := e.keyPoints(body)
	if len(points) != 2 {
		t.Fatalf("got %d key points, want 2: %v", len(points), points)
	}
}

func TestQAPairExtraction(t *testing.T) {
	body := "Q: What is the applicable rate?\n" +
		"A: The applicable rate is 13 percent.\n" +
		"Q: Who must file a return?\n" +
		"A: All registered taxpayers must file.\n" +
		"Q: Is there an answer to this one?\n"

	pairs := extractQAPairs(body)
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, want 2: %v", len(pairs), pairs)
	}
	if pairs[0].Question != "What is the applicable rate?" || pairs[0].Answer != "The applicable rate is 13 percent." {
		t.Fatalf("unexpected first pair: %+v", pairs[0])
	}
	if pairs[1].Question != "Who must file a return?" {
		t.Fatalf("unexpected second pair: %+v", pairs[1])
	}
}

func TestExtractToleratesEmptyInput(t *testing.T) {
	e := newTestExtractor(t)

	f := e.Extract("", "")
	if f.DocumentNumber != "" || f.PublishDate != nil || len(f.QAPairs) != 0 {
		t.Fatalf("empty input must yield empty fields: %+v", f)
	}
	if !reflect.DeepEqual(f.TaxTypes, []string{"other"}) {
		t.Fatalf("tax types = %v, want [other]", f.TaxTypes)
	}
	if f.ValidityStatus != domain.ValidityUnknown {
		t.Fatalf("validity = %s, want unknown", f.ValidityStatus)
	}
}
