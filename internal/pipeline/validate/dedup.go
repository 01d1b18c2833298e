package validate

import (
	"sort"

	"github.com/policykb/taxkb/internal/core/domain"
)

// Deduplicate finds documents to remove: identity/URL collisions and
// title+publishDate collisions both keep the earliest crawled copy.
// Near-duplicates by content similarity are reported only, never removed;
// whether to merge them stays a reviewed, manual step.
func (v *Validator) Deduplicate(docs []*domain.PolicyDocument) (toRemove []string, stats domain.DedupStats) {
	stats.Total = len(docs)
	removed := make(map[string]struct{})

	collapse := func(groups map[string][]*domain.PolicyDocument) int {
		collisions := 0
		keys := make([]string, 0, len(groups))
		for k := range groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			group := groups[k]
			if len(group) < 2 {
				continue
			}
			collisions++
			sort.Slice(group, func(i, j int) bool {
				if !group[i].CrawledAt.Equal(group[j].CrawledAt) {
					return group[i].CrawledAt.Before(group[j].CrawledAt)
				}
				return group[i].ID < group[j].ID
			})
			for _, dup := range group[1:] {
				if _, done := removed[dup.ID]; !done {
					removed[dup.ID] = struct{}{}
					toRemove = append(toRemove, dup.ID)
				}
			}
		}
		return collisions
	}

	byURL := make(map[string][]*domain.PolicyDocument)
	for _, doc := range docs {
		if doc.OriginURL != "" {
			byURL[doc.OriginURL] = append(byURL[doc.OriginURL], doc)
		}
	}
	collapse(byURL)

	byTitleDate := make(map[string][]*domain.PolicyDocument)
	for _, doc := range docs {
		if _, gone := removed[doc.ID]; gone {
			continue
		}
		key := doc.Title
		if doc.PublishDate != nil {
			key += "|" + doc.PublishDate.Format("2006-01-02")
		}
		byTitleDate[key] = append(byTitleDate[key], doc)
	}
	stats.TitleDateDuplicates = collapse(byTitleDate)

	stats.Removed = len(toRemove)
	stats.SimilarPairs = v.CheckContentSimilarity(docs, removed)
	return toRemove, stats
}

// similarityPrefix caps the compared content length; the quadratic matcher
// only needs enough text to separate near-duplicates from rewrites.
const similarityPrefix = 500

// CheckContentSimilarity reports pairs whose content-similarity ratio meets
// the configured threshold without being removal candidates already.
func (v *Validator) CheckContentSimilarity(docs []*domain.PolicyDocument, skip map[string]struct{}) []domain.SimilarPair {
	var live []*domain.PolicyDocument
	for _, doc := range docs {
		if skip != nil {
			if _, gone := skip[doc.ID]; gone {
				continue
			}
		}
		if doc.Content != "" {
			live = append(live, doc)
		}
	}

	var pairs []domain.SimilarPair
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			ratio := similarityRatio(live[i].Content, live[j].Content)
			if ratio >= v.rules.Similarity {
				pairs = append(pairs, domain.SimilarPair{
					FirstID:     live[i].ID,
					SecondID:    live[j].ID,
					FirstTitle:  live[i].Title,
					SecondTitle: live[j].Title,
					Similarity:  ratio,
				})
			}
		}
	}
	return pairs
}

// similarityRatio is 2*LCS/(m+n) over rune prefixes, the classic
// sequence-matcher ratio. Identical strings score 1.0.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > similarityPrefix {
		ra = ra[:similarityPrefix]
	}
	if len(rb) > similarityPrefix {
		rb = rb[:similarityPrefix]
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}
