// Package rules holds the pattern tables and lookup maps that drive the
// extraction pipeline. They are parsed once into an immutable Ruleset and
// passed explicitly into each component, never held as process-wide state.
package rules

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embedded []byte

type file struct {
	DocumentNumberPatterns []string `yaml:"document_number_patterns"`

	Dates struct {
		PublishLabels   []string `yaml:"publish_labels"`
		EffectiveLabels []string `yaml:"effective_labels"`
		ExpiryLabels    []string `yaml:"expiry_labels"`
		LongTermMarkers []string `yaml:"long_term_markers"`
	} `yaml:"dates"`

	TaxTypes      map[string][]string `yaml:"tax_types"`
	TaxCategories map[string][]string `yaml:"tax_categories"`

	Classifier struct {
		LawTitlePattern             string   `yaml:"law_title_pattern"`
		LegislatureKeywords         []string `yaml:"legislature_keywords"`
		RegulationTitleKeywords     []string `yaml:"regulation_title_keywords"`
		CentralExecutiveKeywords    []string `yaml:"central_executive_keywords"`
		MinistryCitationPatterns    []string `yaml:"ministry_citation_patterns"`
		AnnouncementKeywords        []string `yaml:"announcement_keywords"`
		MeasureTitleKeywords        []string `yaml:"measure_title_keywords"`
		InterpretationTitleKeywords []string `yaml:"interpretation_title_keywords"`
		QATitleKeywords             []string `yaml:"qa_title_keywords"`
	} `yaml:"classifier"`

	Citations struct {
		Patterns []string `yaml:"patterns"`
	} `yaml:"citations"`

	RootLaws        map[string]string `yaml:"root_laws"`
	RelatedKeywords []string          `yaml:"related_keywords"`

	Thresholds struct {
		StalenessYears int     `yaml:"staleness_years"`
		Similarity     float64 `yaml:"similarity"`
		RelatedLimit   int     `yaml:"related_limit"`
		KeyPointMin    int     `yaml:"key_point_min"`
		KeyPointMax    int     `yaml:"key_point_max"`
		KeyPointCap    int     `yaml:"key_point_cap"`
	} `yaml:"thresholds"`
}

// Ruleset is the compiled, read-only form of rules.yaml.
type Ruleset struct {
	DocumentNumberPatterns []*regexp.Regexp

	PublishLabels   []string
	EffectiveLabels []string
	ExpiryLabels    []string
	LongTermMarkers []string

	TaxTypes      map[string][]string
	TaxCategories map[string][]string

	LawTitlePattern             *regexp.Regexp
	LegislatureKeywords         []string
	RegulationTitleKeywords     []string
	CentralExecutiveKeywords    []string
	MinistryCitationPatterns    []*regexp.Regexp
	AnnouncementKeywords        []string
	MeasureTitleKeywords        []string
	InterpretationTitleKeywords []string
	QATitleKeywords             []string

	CitationPatterns []*regexp.Regexp

	RootLaws        map[string]string
	RelatedKeywords []string

	StalenessYears int
	Similarity     float64
	RelatedLimit   int
	KeyPointMin    int
	KeyPointMax    int
	KeyPointCap    int
}

// Default parses the embedded rules file.
func Default() (*Ruleset, error) {
	return Parse(embedded)
}

// Parse compiles a rules file into an immutable Ruleset.
func Parse(raw []byte) (*Ruleset, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}

	rs := &Ruleset{
		PublishLabels:   lower(f.Dates.PublishLabels),
		EffectiveLabels: lower(f.Dates.EffectiveLabels),
		ExpiryLabels:    lower(f.Dates.ExpiryLabels),
		LongTermMarkers: lower(f.Dates.LongTermMarkers),

		TaxTypes:      lowerMap(f.TaxTypes),
		TaxCategories: lowerMap(f.TaxCategories),

		LegislatureKeywords:         lower(f.Classifier.LegislatureKeywords),
		RegulationTitleKeywords:     lower(f.Classifier.RegulationTitleKeywords),
		CentralExecutiveKeywords:    lower(f.Classifier.CentralExecutiveKeywords),
		AnnouncementKeywords:        lower(f.Classifier.AnnouncementKeywords),
		MeasureTitleKeywords:        lower(f.Classifier.MeasureTitleKeywords),
		InterpretationTitleKeywords: lower(f.Classifier.InterpretationTitleKeywords),
		QATitleKeywords:             lower(f.Classifier.QATitleKeywords),

		RootLaws:        f.RootLaws,
		RelatedKeywords: lower(f.RelatedKeywords),

		StalenessYears: f.Thresholds.StalenessYears,
		Similarity:     f.Thresholds.Similarity,
		RelatedLimit:   f.Thresholds.RelatedLimit,
		KeyPointMin:    f.Thresholds.KeyPointMin,
		KeyPointMax:    f.Thresholds.KeyPointMax,
		KeyPointCap:    f.Thresholds.KeyPointCap,
	}

	var err error
	if rs.DocumentNumberPatterns, err = compileAll(f.DocumentNumberPatterns); err != nil {
		return nil, fmt.Errorf("document number patterns: %w", err)
	}
	if rs.MinistryCitationPatterns, err = compileAll(f.Classifier.MinistryCitationPatterns); err != nil {
		return nil, fmt.Errorf("ministry citation patterns: %w", err)
	}
	if rs.CitationPatterns, err = compileAll(f.Citations.Patterns); err != nil {
		return nil, fmt.Errorf("citation patterns: %w", err)
	}
	if f.Classifier.LawTitlePattern != "" {
		if rs.LawTitlePattern, err = regexp.Compile(f.Classifier.LawTitlePattern); err != nil {
			return nil, fmt.Errorf("law title pattern: %w", err)
		}
	}

	rs.applyDefaults()
	return rs, nil
}

func (rs *Ruleset) applyDefaults() {
	if rs.StalenessYears <= 0 {
		rs.StalenessYears = 5
	}
	if rs.Similarity <= 0 || rs.Similarity > 1 {
		rs.Similarity = 0.9
	}
	if rs.RelatedLimit <= 0 {
		rs.RelatedLimit = 10
	}
	if rs.KeyPointMin <= 0 {
		rs.KeyPointMin = 20
	}
	if rs.KeyPointMax <= rs.KeyPointMin {
		rs.KeyPointMax = 300
	}
	if rs.KeyPointCap <= 0 {
		rs.KeyPointCap = 10
	}
}

// ContainsAny reports whether text (lowercased by the caller) contains any of
// the given keywords. It is the shared first-match helper for keyword tables.
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func lower(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

func lowerMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, vals := range m {
		out[k] = lower(vals)
	}
	return out
}
