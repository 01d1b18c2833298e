// Package extract pulls structured fields out of raw legal text. Extraction
// never fails: every field is optional and the zero value is the uniform
// "not found" signal.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

// Fields is the fully optional output of one extraction pass.
type Fields struct {
	DocumentNumber string

	PublishDate    *time.Time
	EffectiveDate  *time.Time
	ExpiryDate     *time.Time
	ValidityStatus domain.ValidityStatus

	TaxTypes    []string
	TaxCategory domain.TaxCategory

	IssuingAuthority string
	AuthorityType    string

	KeyPoints []string
	QAPairs   []domain.QAPair
}

type Extractor struct {
	rules *rules.Ruleset
	now   func() time.Time
}

func New(rs *rules.Ruleset) *Extractor {
	return &Extractor{rules: rs, now: time.Now}
}

// NewAt pins the clock, for validity-inference tests.
func NewAt(rs *rules.Ruleset, now func() time.Time) *Extractor {
	return &Extractor{rules: rs, now: now}
}

// Extract runs every field rule over (title, body). Empty or noisy input
// degrades to absent fields, never an error.
func (e *Extractor) Extract(title, body string) Fields {
	combined := title + "\n" + body

	f := Fields{
		DocumentNumber: e.documentNumber(combined),
		TaxTypes:       e.taxTypes(combined),
		TaxCategory:    e.taxCategory(combined),
		KeyPoints:      e.keyPoints(body),
		QAPairs:        extractQAPairs(body),
	}
	f.IssuingAuthority, f.AuthorityType = e.authority(body)

	e.extractDates(&f, combined)
	f.ValidityStatus = e.inferValidity(f)
	return f
}

// documentNumber applies the ordered citation-format patterns; the first
// match wins and is normalized (whitespace collapsed, CJK brackets
// regularized).
func (e *Extractor) documentNumber(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range e.rules.DocumentNumberPatterns {
		match := re.FindString(text)
		if match == "" {
			continue
		}
		return normalizeNumber(match)
	}
	return ""
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeNumber(s string) string {
	s = strings.ReplaceAll(s, "〔", "[")
	s = strings.ReplaceAll(s, "〕", "]")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// taxTypes is fixed-vocabulary keyword membership; multiple tags allowed,
// unmatched text defaults to {"other"}.
func (e *Extractor) taxTypes(text string) []string {
	lowered := strings.ToLower(text)

	tags := make([]string, 0, 2)
	for tag, keywords := range e.rules.TaxTypes {
		if rules.ContainsAny(lowered, keywords) {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return []string{"other"}
	}
	sort.Strings(tags)
	return tags
}

func (e *Extractor) taxCategory(text string) domain.TaxCategory {
	lowered := strings.ToLower(text)
	if rules.ContainsAny(lowered, e.rules.TaxCategories["international"]) {
		return domain.CategoryInternational
	}
	if rules.ContainsAny(lowered, e.rules.TaxCategories["procedural"]) {
		return domain.CategoryProcedural
	}
	return domain.CategoryEntity
}

func (e *Extractor) authority(body string) (string, string) {
	lowered := strings.ToLower(body)
	switch {
	case rules.ContainsAny(lowered, e.rules.LegislatureKeywords):
		return "national legislature", "legislative"
	case rules.ContainsAny(lowered, e.rules.CentralExecutiveKeywords):
		return "central executive", "executive"
	case strings.Contains(lowered, "ministry of finance"):
		return "ministry of finance", "ministerial"
	case strings.Contains(lowered, "state taxation administration"):
		return "state taxation administration", "ministerial"
	case strings.Contains(lowered, "tax bureau"):
		return "local tax bureau", "local"
	default:
		return "", ""
	}
}

var (
	articleMarker   = regexp.MustCompile(`(?m)^\s*(?:Article\s+\d+[.:]?|\d{1,3}\.\s|\(\d{1,3}\)\s)`)
	paragraphSplit  = regexp.MustCompile(`\n{2,}|(?:\.\s*\n)`)
	questionPattern = regexp.MustCompile(`(?m)^\s*(?:Q|Question)\s*[:.]\s*(.+)$`)
	answerPattern   = regexp.MustCompile(`(?m)^\s*(?:A|Answer)\s*[:.]\s*(.+)$`)
)

// keyPoints splits the body on ordinal/paragraph markers and keeps segments
// within the configured length band, capped at the configured count.
func (e *Extractor) keyPoints(body string) []string {
	if body == "" {
		return nil
	}

	points := e.collectSegments(articleMarker.Split(body, -1))
	if len(points) < 3 {
		for _, seg := range e.collectSegments(paragraphSplit.Split(body, -1)) {
			if !contains(points, seg) {
				points = append(points, seg)
			}
		}
	}

	if len(points) > e.rules.KeyPointCap {
		points = points[:e.rules.KeyPointCap]
	}
	return points
}

func (e *Extractor) collectSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		n := len([]rune(seg))
		if n >= e.rules.KeyPointMin && n <= e.rules.KeyPointMax {
			out = append(out, seg)
		}
	}
	return out
}

// extractQAPairs pairs up Q:/A: lines in guidance documents.
func extractQAPairs(body string) []domain.QAPair {
	questions := questionPattern.FindAllStringSubmatchIndex(body, -1)
	if len(questions) == 0 {
		return nil
	}
	answers := answerPattern.FindAllStringSubmatchIndex(body, -1)

	pairs := make([]domain.QAPair, 0, len(questions))
	for i, q := range questions {
		question := strings.TrimSpace(body[q[2]:q[3]])

		// The answer is the first A: line after this question and before the next.
		limit := len(body)
		if i+1 < len(questions) {
			limit = questions[i+1][0]
		}
		for _, a := range answers {
			if a[0] > q[1] && a[0] < limit {
				pairs = append(pairs, domain.QAPair{
					Question: question,
					Answer:   strings.TrimSpace(body[a[2]:a[3]]),
				})
				break
			}
		}
	}
	return pairs
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
