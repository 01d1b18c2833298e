package relate

import (
	"sort"
	"strings"

	"github.com/policykb/taxkb/internal/core/domain"
)

// Citation is one in-text reference naming another document by title.
type Citation struct {
	RawTitle   string
	ResolvedID string
}

// extractCitations scans the body for bracket-delimited title citations and
// regulatory-reference phrases, in pattern order, deduplicated.
func (b *Builder) extractCitations(content string) []string {
	if content == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var titles []string
	for _, re := range b.rules.CitationPatterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if len(m) < 2 {
				continue
			}
			title := strings.TrimSpace(m[1])
			if title == "" {
				continue
			}
			key := strings.ToLower(title)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			titles = append(titles, title)
		}
	}
	return titles
}

// resolveTitle matches a cited title against the corpus. Exact title match
// wins; otherwise substring containment in either direction, preferring the
// highest-authority candidate with the smallest ID so resolution is stable
// across runs.
func (c *corpusIndex) resolveTitle(title string) *domain.PolicyDocument {
	lowered := strings.ToLower(title)

	if doc, ok := c.byTitle[lowered]; ok {
		return doc
	}

	var candidates []*domain.PolicyDocument
	for _, doc := range c.docs {
		docTitle := strings.ToLower(doc.Title)
		if strings.Contains(docTitle, lowered) || strings.Contains(lowered, docTitle) {
			candidates = append(candidates, doc)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := levelOrder(candidates[i].Level), levelOrder(candidates[j].Level)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

// levelOrder ranks authority: L1 highest. Unknown levels sort last.
func levelOrder(l domain.Level) int {
	switch l {
	case domain.LevelLaw:
		return 1
	case domain.LevelMinisterial:
		return 2
	case domain.LevelNormative:
		return 3
	case domain.LevelInterpretation:
		return 4
	default:
		return 5
	}
}

type corpusIndex struct {
	docs    []*domain.PolicyDocument
	byID    map[string]*domain.PolicyDocument
	byTitle map[string]*domain.PolicyDocument
}

func indexCorpus(docs []*domain.PolicyDocument) *corpusIndex {
	idx := &corpusIndex{
		docs:    docs,
		byID:    make(map[string]*domain.PolicyDocument, len(docs)),
		byTitle: make(map[string]*domain.PolicyDocument, len(docs)),
	}
	for _, doc := range docs {
		idx.byID[doc.ID] = doc
		idx.byTitle[strings.ToLower(doc.Title)] = doc
	}
	return idx
}
