package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/rules"
)

// documentHead bounds the region in which an unlabeled first date is taken
// as the publish date.
const documentHead = 300

// contextWindow is how far back a date looks for its labeling phrase.
const contextWindow = 48

var (
	numericDate = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})(?:[-/.](\d{1,2}))?\b`)
	textualDate = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),\s*(\d{4})\b`)
	yearOnly    = regexp.MustCompile(`(?i)\buntil\s+(?:the\s+end\s+of\s+)?(\d{4})\b`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

type dateHit struct {
	pos   int
	year  int
	month int // 0 when absent
	day   int // 0 when absent
}

// extractDates fills the three date roles. Labeled context phrases win;
// an unlabeled date in the document head falls back to the publish role.
func (e *Extractor) extractDates(f *Fields, text string) {
	lowered := strings.ToLower(text)

	for _, hit := range findDates(text) {
		role := e.roleFor(lowered, hit.pos)
		switch role {
		case "publish":
			if f.PublishDate == nil {
				f.PublishDate = hit.materialize(1, false)
			}
		case "effective":
			if f.EffectiveDate == nil {
				f.EffectiveDate = hit.materialize(1, false)
			}
		case "expiry":
			if f.ExpiryDate == nil {
				f.ExpiryDate = hit.materialize(0, true)
			}
		default:
			if f.PublishDate == nil && hit.pos < documentHead {
				f.PublishDate = hit.materialize(1, false)
			}
		}
	}

	// "valid until 2027" style expiry with no month: year-end.
	if f.ExpiryDate == nil {
		if m := yearOnly.FindStringSubmatch(lowered); m != nil {
			year, _ := strconv.Atoi(m[1])
			t := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
			f.ExpiryDate = &t
		}
	}

	// A long-term marker overrides any expiry reading.
	if rules.ContainsAny(lowered, e.rules.LongTermMarkers) {
		f.ExpiryDate = nil
	}
}

func (e *Extractor) roleFor(lowered string, pos int) string {
	start := pos - contextWindow
	if start < 0 {
		start = 0
	}
	context := lowered[start:pos]

	switch {
	case rules.ContainsAny(context, e.rules.ExpiryLabels):
		return "expiry"
	case rules.ContainsAny(context, e.rules.EffectiveLabels):
		return "effective"
	case rules.ContainsAny(context, e.rules.PublishLabels):
		return "publish"
	default:
		return ""
	}
}

func findDates(text string) []dateHit {
	var hits []dateHit

	for _, m := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		hit := dateHit{pos: m[0]}
		hit.year, _ = strconv.Atoi(text[m[2]:m[3]])
		hit.month, _ = strconv.Atoi(text[m[4]:m[5]])
		if m[6] >= 0 {
			hit.day, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		if hit.valid() {
			hits = append(hits, hit)
		}
	}

	for _, m := range textualDate.FindAllStringSubmatchIndex(text, -1) {
		hit := dateHit{pos: m[0]}
		hit.month = int(months[strings.ToLower(text[m[2]:m[3]])])
		hit.day, _ = strconv.Atoi(text[m[4]:m[5]])
		hit.year, _ = strconv.Atoi(text[m[6]:m[7]])
		if hit.valid() {
			hits = append(hits, hit)
		}
	}

	// Document order decides which hit claims an unlabeled role first.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	return hits
}

func (h dateHit) valid() bool {
	if h.year < 1900 || h.year > 2200 {
		return false
	}
	if h.month < 0 || h.month > 12 {
		return false
	}
	return h.day >= 0 && h.day <= 31
}

// materialize builds the timestamp, defaulting a missing day to defaultDay
// (or the period end when periodEnd is set: month-end, or December 31 when
// the month is also missing).
func (h dateHit) materialize(defaultDay int, periodEnd bool) *time.Time {
	month := h.month
	day := h.day

	if periodEnd {
		if month == 0 {
			month = 12
		}
		if day == 0 {
			day = daysIn(h.year, time.Month(month))
		}
	} else {
		if month == 0 {
			month = 1
		}
		if day == 0 {
			day = defaultDay
		}
	}

	t := time.Date(h.year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// inferValidity derives the temporal status: a past expiry means expired, a
// future effective date means not yet in force, and a stale publish date with
// no other signal means the status cannot be trusted.
func (e *Extractor) inferValidity(f Fields) domain.ValidityStatus {
	now := e.now().UTC()

	if f.ExpiryDate != nil && f.ExpiryDate.Before(now) {
		return domain.ValidityExpired
	}
	if f.EffectiveDate != nil && f.EffectiveDate.After(now) {
		return domain.ValidityPartial
	}
	if f.ExpiryDate != nil || f.EffectiveDate != nil {
		return domain.ValidityValid
	}
	if f.PublishDate == nil {
		return domain.ValidityUnknown
	}
	if f.PublishDate.Year() < now.Year()-e.rules.StalenessYears {
		return domain.ValidityUnknown
	}
	return domain.ValidityValid
}
