package domain

import "time"

// ValidationResult is the outcome for a single document. Issues block
// validity and reduce the score; warnings are informational only.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Score    int      `json:"score"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Offender is a low-quality document sampled into the validation report.
type Offender struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Score  int      `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// ValidationReport aggregates per-document validation over the corpus.
type ValidationReport struct {
	Total        int            `json:"total"`
	ValidCount   int            `json:"valid_count"`
	InvalidCount int            `json:"invalid_count"`
	IssuesByType map[string]int `json:"issues_by_type"`
	WorstSample  []Offender     `json:"worst_sample,omitempty"`
}

// SimilarPair is a reported near-duplicate; removal stays a manual step.
type SimilarPair struct {
	FirstID     string  `json:"first_id"`
	SecondID    string  `json:"second_id"`
	FirstTitle  string  `json:"first_title"`
	SecondTitle string  `json:"second_title"`
	Similarity  float64 `json:"similarity"`
}

// DedupStats summarizes a deduplication pass.
type DedupStats struct {
	Total               int           `json:"total"`
	TitleDateDuplicates int           `json:"title_date_duplicates"`
	Removed             int           `json:"removed"`
	SimilarPairs        []SimilarPair `json:"similar_pairs,omitempty"`
}

// QualityReport is the corpus-wide quality summary for operational tooling.
type QualityReport struct {
	GeneratedAt        time.Time           `json:"generated_at"`
	Total              int                 `json:"total"`
	CountByLevel       map[Level]int       `json:"count_by_level"`
	CountByCategory    map[TaxCategory]int `json:"count_by_category"`
	AverageScore       float64             `json:"average_score"`
	SubScores          map[string]float64  `json:"sub_scores"`
	OverallGrade       Grade               `json:"overall_grade"`
	Issues             []string            `json:"issues,omitempty"`
	WithParent         int                 `json:"with_parent"`
	WithChain          int                 `json:"with_chain"`
	WithDocumentNumber int                 `json:"with_document_number"`
}

// JobStatus tracks asynchronous pipeline stage runs.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type PipelineStage string

const (
	StageIngest   PipelineStage = "ingest"
	StageRelate   PipelineStage = "relate"
	StageValidate PipelineStage = "validate"
)

// PipelineJob records one asynchronous stage run and its progress counters.
type PipelineJob struct {
	ID         string        `json:"id"`
	Stage      PipelineStage `json:"stage"`
	Status     JobStatus     `json:"status"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Error      string        `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// RelationStats summarizes a relationship-builder pass.
type RelationStats struct {
	Total       int `json:"total"`
	WithParent  int `json:"with_parent"`
	WithChain   int `json:"with_chain"`
	WithRelated int `json:"with_related"`
	QALinked    int `json:"qa_linked"`
}

// CitationGraph is the neighborhood of one document in the citation graph.
type CitationGraph struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Cites   []CitationNode `json:"cites"`
	CitedBy []CitationNode `json:"cited_by"`
}

type CitationNode struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level Level  `json:"level"`
}
