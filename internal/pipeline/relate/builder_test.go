package relate

import (
	"reflect"
	"testing"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return New(rs)
}

func testCorpus() []*domain.PolicyDocument {
	return []*domain.PolicyDocument{
		{
			ID:       "law-vat",
			Title:    "Value-Added Tax Law",
			Level:    domain.LevelLaw,
			TaxTypes: []string{"vat"},
			Content:  "Adopted by the national legislature.",
		},
		{
			ID:       "circ-1",
			Title:    "Notice on VAT Credit Refund Policy",
			Level:    domain.LevelMinisterial,
			TaxTypes: []string{"vat"},
			Content:  "This notice is issued pursuant to the Value-Added Tax Law and applies nationwide.",
		},
		{
			ID:       "circ-2",
			Title:    "Announcement on VAT Small-Scale Taxpayer Relief",
			Level:    domain.LevelMinisterial,
			TaxTypes: []string{"vat"},
			Content:  "Relief measures for small-scale taxpayers are set out below.",
		},
		{
			ID:       "qa-1",
			Title:    "Q&A on VAT Filing",
			Level:    domain.LevelInterpretation,
			TaxTypes: []string{"vat"},
			Content:  "According to the 《Notice on VAT Credit Refund Policy》, refunds are monthly.",
		},
	}
}

func docByID(t *testing.T, docs []*domain.PolicyDocument, id string) *domain.PolicyDocument {
	t.Helper()
	for _, d := range docs {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("document %s not in corpus", id)
	return nil
}

func TestBuildResolvesCitationsParentsAndChains(t *testing.T) {
	b := newTestBuilder(t)
	docs := testCorpus()

	stats := b.Build(docs)

	circ := docByID(t, docs, "circ-1")
	if !reflect.DeepEqual(circ.CitedIDs, []string{"law-vat"}) {
		t.Fatalf("circ-1 cited = %v", circ.CitedIDs)
	}
	if circ.ParentID != "law-vat" {
		t.Fatalf("circ-1 parent = %q", circ.ParentID)
	}
	if !reflect.DeepEqual(circ.LegislationChain, []string{"circ-1", "law-vat"}) {
		t.Fatalf("circ-1 chain = %v", circ.LegislationChain)
	}
	if circ.RootID != "law-vat" {
		t.Fatalf("circ-1 root = %q", circ.RootID)
	}

	// No citation in circ-2: the tax-type root-law table supplies the parent.
	circ2 := docByID(t, docs, "circ-2")
	if circ2.ParentID != "law-vat" {
		t.Fatalf("circ-2 parent = %q", circ2.ParentID)
	}

	// The Q&A cites the notice, which becomes its parent and extends the chain.
	qa := docByID(t, docs, "qa-1")
	if qa.ParentID != "circ-1" {
		t.Fatalf("qa-1 parent = %q", qa.ParentID)
	}
	if !reflect.DeepEqual(qa.LegislationChain, []string{"qa-1", "circ-1", "law-vat"}) {
		t.Fatalf("qa-1 chain = %v", qa.LegislationChain)
	}
	if qa.RootID != "law-vat" {
		t.Fatalf("qa-1 root = %q", qa.RootID)
	}

	// Symmetry: every citation and parent link shows up on the target.
	law := docByID(t, docs, "law-vat")
	if !reflect.DeepEqual(law.CitedByIDs, []string{"circ-1", "circ-2"}) {
		t.Fatalf("law-vat cited_by = %v", law.CitedByIDs)
	}
	if !reflect.DeepEqual(circ.CitedByIDs, []string{"qa-1"}) {
		t.Fatalf("circ-1 cited_by = %v", circ.CitedByIDs)
	}

	// Same-level documents sharing a tax type relate both ways.
	if !reflect.DeepEqual(circ.RelatedIDs, []string{"circ-2"}) {
		t.Fatalf("circ-1 related = %v", circ.RelatedIDs)
	}
	if !reflect.DeepEqual(circ2.RelatedIDs, []string{"circ-1"}) {
		t.Fatalf("circ-2 related = %v", circ2.RelatedIDs)
	}

	want := domain.RelationStats{Total: 4, WithParent: 3, WithChain: 3, WithRelated: 2, QALinked: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestBuildConvergesOnRerun(t *testing.T) {
	b := newTestBuilder(t)
	docs := testCorpus()

	first := b.Build(docs)
	snapshot := make([]domain.PolicyDocument, len(docs))
	for i, d := range docs {
		snapshot[i] = *d
	}

	second := b.Build(docs)
	if first != second {
		t.Fatalf("stats diverged: %+v vs %+v", first, second)
	}
	for i, d := range docs {
		if !reflect.DeepEqual(snapshot[i].CitedIDs, d.CitedIDs) ||
			!reflect.DeepEqual(snapshot[i].CitedByIDs, d.CitedByIDs) ||
			snapshot[i].ParentID != d.ParentID ||
			!reflect.DeepEqual(snapshot[i].LegislationChain, d.LegislationChain) ||
			snapshot[i].RootID != d.RootID {
			t.Fatalf("document %s changed on rerun:\nfirst  %+v\nsecond %+v", d.ID, snapshot[i], *d)
		}
	}
}

func TestBuildTerminatesOnParentCycle(t *testing.T) {
	b := newTestBuilder(t)
	docs := []*domain.PolicyDocument{
		{ID: "a", Title: "Notice A", Level: domain.LevelMinisterial, ParentID: "b", TaxTypes: []string{"other"}},
		{ID: "b", Title: "Notice B", Level: domain.LevelMinisterial, ParentID: "a", TaxTypes: []string{"other"}},
	}

	b.Build(docs)

	for _, d := range docs {
		if len(d.LegislationChain) == 0 || len(d.LegislationChain) > 2 {
			t.Fatalf("chain for %s = %v, want 1 or 2 nodes", d.ID, d.LegislationChain)
		}
	}
}

func TestExtractCitationsDeduplicatesAcrossPatterns(t *testing.T) {
	b := newTestBuilder(t)

	content := `Pursuant per 《Stamp Duty Law》 and issued pursuant to the Stamp Duty Law, ` +
		`see also the "Administrative Penalty Measures" for enforcement.`

	got := b.extractCitations(content)
	want := []string{"Stamp Duty Law", "Administrative Penalty Measures"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("citations = %v, want %v", got, want)
	}
}

func TestResolveTitlePrefersExactThenAuthority(t *testing.T) {
	docs := []*domain.PolicyDocument{
		{ID: "b-doc", Title: "Consumption Tax Law", Level: domain.LevelLaw},
		{ID: "a-doc", Title: "Interpretation of the Consumption Tax Law", Level: domain.LevelInterpretation},
	}
	idx := indexCorpus(docs)

	if got := idx.resolveTitle("Consumption Tax Law"); got == nil || got.ID != "b-doc" {
		t.Fatalf("exact match resolved to %v", got)
	}

	// Substring match: the higher-authority candidate wins over ID order.
	if got := idx.resolveTitle("the Consumption Tax Law as amended"); got != nil && got.ID != "b-doc" {
		t.Fatalf("containment match resolved to %s", got.ID)
	}
}
