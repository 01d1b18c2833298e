package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
	"github.com/policykb/taxkb/internal/pipeline/classify"
	"github.com/policykb/taxkb/internal/pipeline/extract"
	"github.com/policykb/taxkb/internal/pipeline/score"
)

type FieldExtractor interface {
	Extract(title, body string) extract.Fields
}

type HierarchyClassifier interface {
	Classify(title, body string) classify.Result
}

type QualityScorer interface {
	Score(doc *domain.PolicyDocument) score.Breakdown
}

// IngestPolicyUseCase accepts raw (title, body) tuples from the retrieval
// collaborator and turns each into a typed, scored record.
type IngestPolicyUseCase struct {
	repo       ports.PolicyRepository
	queue      ports.MessageQueue
	extractor  FieldExtractor
	classifier HierarchyClassifier
	scorer     QualityScorer
	graph      ports.CitationGraph
}

func NewIngestPolicyUseCase(
	repo ports.PolicyRepository,
	queue ports.MessageQueue,
	extractor FieldExtractor,
	classifier HierarchyClassifier,
	scorer QualityScorer,
	graph ports.CitationGraph,
) *IngestPolicyUseCase {
	return &IngestPolicyUseCase{
		repo:       repo,
		queue:      queue,
		extractor:  extractor,
		classifier: classifier,
		scorer:     scorer,
		graph:      graph,
	}
}

// Submit queues a raw tuple for asynchronous processing.
func (uc *IngestPolicyUseCase) Submit(ctx context.Context, raw domain.RawPolicy) error {
	if raw.Title == "" && raw.Body == "" {
		return domain.WrapError(domain.ErrInvalidInput, "submit policy", errors.New("empty title and body"))
	}
	if raw.CrawledAt.IsZero() {
		raw.CrawledAt = time.Now().UTC()
	}
	if err := uc.queue.PublishRawPolicy(ctx, raw); err != nil {
		return fmt.Errorf("publish raw policy: %w", err)
	}
	return nil
}

// Process runs extraction, classification and scoring over one raw tuple and
// upserts the result. Extraction never fails; only total absence of input
// aborts.
func (uc *IngestPolicyUseCase) Process(ctx context.Context, raw domain.RawPolicy) (*domain.PolicyDocument, error) {
	if raw.Title == "" && raw.Body == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process policy", errors.New("empty title and body"))
	}

	fields := uc.extractor.Extract(raw.Title, raw.Body)
	classification := uc.classifier.Classify(raw.Title, raw.Body)

	now := time.Now().UTC()
	crawledAt := raw.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = now
	}

	doc := &domain.PolicyDocument{
		ID:        domain.Identity(fields.DocumentNumber, raw.Source, raw.Title, raw.Body),
		Title:     raw.Title,
		Source:    raw.Source,
		OriginURL: raw.SourceURL,
		Region:    regionFor(fields.AuthorityType),

		Level:        classification.Level,
		DocumentType: classification.DocumentType,
		TaxCategory:  fields.TaxCategory,
		TaxTypes:     fields.TaxTypes,

		DocumentNumber:   fields.DocumentNumber,
		IssuingAuthority: fields.IssuingAuthority,
		AuthorityType:    fields.AuthorityType,

		PublishDate:    fields.PublishDate,
		EffectiveDate:  fields.EffectiveDate,
		ExpiryDate:     fields.ExpiryDate,
		ValidityStatus: fields.ValidityStatus,

		Content:   raw.Body,
		KeyPoints: fields.KeyPoints,
		QAPairs:   fields.QAPairs,

		CrawledAt: crawledAt,
		UpdatedAt: now,
	}

	breakdown := uc.scorer.Score(doc)
	doc.QualityScore = breakdown.Composite
	doc.QualityGrade = breakdown.Grade

	if err := uc.repo.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("upsert policy: %w", err)
	}

	if uc.graph != nil {
		if err := uc.graph.SyncDocument(ctx, doc); err != nil {
			slog.Warn("citation_graph_sync_failed", "policy_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

// regionFor defaults to the national tag; documents from local authorities
// keep an empty region until tagged, which validation surfaces as a warning.
func regionFor(authorityType string) string {
	if authorityType == "local" {
		return ""
	}
	return domain.RegionNational
}
