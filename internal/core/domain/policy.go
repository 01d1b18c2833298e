package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Level is the canonical 4-tier legal authority rank. L1 is law or
// constitutional rank, L4 is informal interpretation and Q&A guidance.
type Level string

const (
	LevelLaw            Level = "L1"
	LevelMinisterial    Level = "L2"
	LevelNormative      Level = "L3"
	LevelInterpretation Level = "L4"
)

// AuthorityScore maps a level to its authority sub-score for quality scoring.
func (l Level) AuthorityScore() int {
	switch l {
	case LevelLaw:
		return 100
	case LevelMinisterial:
		return 90
	case LevelNormative:
		return 70
	case LevelInterpretation:
		return 50
	default:
		return 0
	}
}

type DocumentType string

const (
	TypeLaw                      DocumentType = "law"
	TypeAdministrativeRegulation DocumentType = "administrative_regulation"
	TypeFiscalDocument           DocumentType = "fiscal_document"
	TypeAnnouncement             DocumentType = "announcement"
	TypeNormativeDocument        DocumentType = "normative_document"
	TypeInterpretation           DocumentType = "interpretation"
	TypeQA                       DocumentType = "qa"
)

// Level returns the single authority level a document type belongs to.
// The mapping is total: unknown types land on L3 like the classifier default.
func (t DocumentType) Level() Level {
	switch t {
	case TypeLaw, TypeAdministrativeRegulation:
		return LevelLaw
	case TypeFiscalDocument, TypeAnnouncement:
		return LevelMinisterial
	case TypeNormativeDocument:
		return LevelNormative
	case TypeInterpretation, TypeQA:
		return LevelInterpretation
	default:
		return LevelNormative
	}
}

// Rank is the legacy 6-tier presentation number (law=1 down to guidance=6).
// It is a relabeling of the canonical 4-level scheme, used for display only.
func (t DocumentType) Rank() int {
	switch t {
	case TypeLaw:
		return 1
	case TypeAdministrativeRegulation:
		return 2
	case TypeFiscalDocument:
		return 3
	case TypeAnnouncement, TypeNormativeDocument:
		return 4
	case TypeInterpretation:
		return 5
	case TypeQA:
		return 6
	default:
		return 4
	}
}

type TaxCategory string

const (
	CategoryEntity        TaxCategory = "entity"
	CategoryProcedural    TaxCategory = "procedural"
	CategoryInternational TaxCategory = "international"
)

type ValidityStatus string

const (
	ValidityValid   ValidityStatus = "valid"
	ValidityExpired ValidityStatus = "expired"
	ValidityPartial ValidityStatus = "partial"
	ValidityUnknown ValidityStatus = "unknown"
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// GradeFor buckets a composite score into a letter grade. Boundaries are
// exact: 90 is an A, 89 a B; 75 a B, 74 a C; 60 a C, 59 a D.
func GradeFor(score int) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 75:
		return GradeB
	case score >= 60:
		return GradeC
	default:
		return GradeD
	}
}

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PolicyDocument is a single legal/regulatory document in the knowledge base.
// Identity is immutable once assigned; relationship and quality fields are
// rewritten by later pipeline passes and must converge on reruns.
type PolicyDocument struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	OriginURL string `json:"origin_url"`
	Region    string `json:"region,omitempty"`

	Level        Level        `json:"level"`
	DocumentType DocumentType `json:"document_type"`
	TaxCategory  TaxCategory  `json:"tax_category"`
	TaxTypes     []string     `json:"tax_types"`

	DocumentNumber   string `json:"document_number,omitempty"`
	IssuingAuthority string `json:"issuing_authority,omitempty"`
	AuthorityType    string `json:"authority_type,omitempty"`

	PublishDate    *time.Time     `json:"publish_date,omitempty"`
	EffectiveDate  *time.Time     `json:"effective_date,omitempty"`
	ExpiryDate     *time.Time     `json:"expiry_date,omitempty"`
	ValidityStatus ValidityStatus `json:"validity_status"`

	ParentID         string   `json:"parent_id,omitempty"`
	RootID           string   `json:"root_id,omitempty"`
	LegislationChain []string `json:"legislation_chain,omitempty"`
	RelatedIDs       []string `json:"related_ids,omitempty"`
	CitedIDs         []string `json:"cited_ids,omitempty"`
	CitedByIDs       []string `json:"cited_by_ids,omitempty"`

	Content   string   `json:"content"`
	KeyPoints []string `json:"key_points,omitempty"`
	QAPairs   []QAPair `json:"qa_pairs,omitempty"`

	QualityScore int   `json:"quality_score"`
	QualityGrade Grade `json:"quality_grade"`

	CrawledAt time.Time `json:"crawled_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity derives the stable document key. The canonical document number is
// preferred; otherwise a content hash over source and text keeps the key
// stable across re-ingestion of the same page.
func Identity(documentNumber, source, title, content string) string {
	if documentNumber != "" {
		sum := sha256.Sum256([]byte(documentNumber))
		return "num-" + hex.EncodeToString(sum[:8])
	}
	sum := sha256.Sum256([]byte(source + "|" + title + "|" + content))
	return "doc-" + hex.EncodeToString(sum[:12])
}

// RegionNational is the default region tag for documents without a local scope.
const RegionNational = "national"
