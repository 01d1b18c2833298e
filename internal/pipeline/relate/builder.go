// Package relate extracts in-text citations, resolves them against the
// corpus, assigns parents, derives cycle-safe legislation chains and
// discovers loosely related documents.
//
// A build pass runs single-threaded over a corpus snapshot: chain walks must
// not race parent reassignments on ancestors, so per-batch serialization is
// the safe discipline. Two passes over an unchanged corpus converge to the
// same assignments.
package relate

import (
	"sort"
	"strings"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

type Builder struct {
	rules *rules.Ruleset
}

func New(rs *rules.Ruleset) *Builder {
	return &Builder{rules: rs}
}

// Build mutates the snapshot in place: cited/citedBy sets, parent, chain,
// root and related sets. The caller persists the result.
func (b *Builder) Build(docs []*domain.PolicyDocument) domain.RelationStats {
	stats := domain.RelationStats{Total: len(docs)}
	idx := indexCorpus(docs)

	// Recompute citation edges from scratch so reruns converge.
	for _, doc := range docs {
		doc.CitedIDs = nil
		doc.CitedByIDs = nil
	}

	for _, doc := range docs {
		cited := b.resolveCited(idx, doc)
		doc.CitedIDs = cited
		if doc.Level == domain.LevelInterpretation && len(cited) > 0 {
			stats.QALinked++
		}
	}

	for _, doc := range docs {
		if b.assignParent(idx, doc) {
			stats.WithParent++
		}
	}

	// Citation symmetry: A cites B implies B.citedBy contains A; a resolved
	// parent counts as a citation of the parent.
	for _, doc := range docs {
		targets := append([]string{}, doc.CitedIDs...)
		if doc.ParentID != "" {
			targets = append(targets, doc.ParentID)
		}
		for _, id := range targets {
			target, ok := idx.byID[id]
			if !ok || target.ID == doc.ID {
				continue
			}
			target.CitedByIDs = appendUnique(target.CitedByIDs, doc.ID)
		}
	}

	for _, doc := range docs {
		if len(b.buildChain(idx, doc)) > 1 {
			stats.WithChain++
		}
	}

	for _, doc := range docs {
		if doc.Level == domain.LevelLaw {
			continue
		}
		doc.RelatedIDs = b.findRelated(idx, doc)
		if len(doc.RelatedIDs) > 0 {
			stats.WithRelated++
		}
	}

	for _, doc := range docs {
		sort.Strings(doc.CitedByIDs)
		sort.Strings(doc.CitedIDs)
	}
	return stats
}

func (b *Builder) resolveCited(idx *corpusIndex, doc *domain.PolicyDocument) []string {
	var out []string
	for _, title := range b.extractCitations(doc.Content) {
		target := idx.resolveTitle(title)
		if target == nil || target.ID == doc.ID {
			continue
		}
		out = appendUnique(out, target.ID)
	}
	return out
}

// assignParent trusts an existing parent reference when its target exists;
// otherwise the first resolved citation of equal-or-higher level wins, then
// the tax-type root-law lookup table.
func (b *Builder) assignParent(idx *corpusIndex, doc *domain.PolicyDocument) bool {
	if doc.ParentID != "" {
		if _, ok := idx.byID[doc.ParentID]; ok {
			return true
		}
		// Dangling reference from an earlier corpus state: re-resolve.
		doc.ParentID = ""
	}

	own := levelOrder(doc.Level)
	for _, id := range doc.CitedIDs {
		target := idx.byID[id]
		if target != nil && levelOrder(target.Level) <= own && target.ID != doc.ID {
			doc.ParentID = target.ID
			return true
		}
	}

	for _, tag := range doc.TaxTypes {
		rootTitle, ok := b.rules.RootLaws[tag]
		if !ok {
			continue
		}
		root := idx.resolveTitle(rootTitle)
		if root != nil && root.ID != doc.ID {
			doc.ParentID = root.ID
			return true
		}
	}
	return false
}

// buildChain walks parent links to the root, aborting on any revisited
// identity since source data offers no acyclicity guarantee. The resulting
// chain suffix and root are stored on every node along the path.
func (b *Builder) buildChain(idx *corpusIndex, doc *domain.PolicyDocument) []string {
	var chain []string
	visited := make(map[string]struct{})

	current := doc
	for current != nil {
		if _, seen := visited[current.ID]; seen {
			break
		}
		visited[current.ID] = struct{}{}
		chain = append(chain, current.ID)

		if current.ParentID == "" {
			break
		}
		current = idx.byID[current.ParentID]
	}

	root := chain[len(chain)-1]
	for i, id := range chain {
		node := idx.byID[id]
		node.LegislationChain = append([]string{}, chain[i:]...)
		node.RootID = root
	}
	return chain
}

// findRelated returns up to the configured limit of documents sharing at
// least one tax-type tag and the same level, widened by controlled-keyword
// title overlap. Order is not significant; IDs are sorted for stability.
func (b *Builder) findRelated(idx *corpusIndex, doc *domain.PolicyDocument) []string {
	tags := make(map[string]struct{}, len(doc.TaxTypes))
	for _, t := range doc.TaxTypes {
		tags[t] = struct{}{}
	}

	title := strings.ToLower(doc.Title)
	var docKeywords []string
	for _, kw := range b.rules.RelatedKeywords {
		if strings.Contains(title, kw) {
			docKeywords = append(docKeywords, kw)
		}
	}

	var related []string
	for _, other := range idx.docs {
		if other.ID == doc.ID {
			continue
		}

		match := false
		if other.Level == doc.Level {
			for _, t := range other.TaxTypes {
				if _, ok := tags[t]; ok && t != "other" {
					match = true
					break
				}
			}
		}
		if !match && len(docKeywords) > 0 {
			otherTitle := strings.ToLower(other.Title)
			for _, kw := range docKeywords {
				if strings.Contains(otherTitle, kw) {
					match = true
					break
				}
			}
		}
		if match {
			related = append(related, other.ID)
		}
	}

	sort.Strings(related)
	if len(related) > b.rules.RelatedLimit {
		related = related[:b.rules.RelatedLimit]
	}
	return related
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
