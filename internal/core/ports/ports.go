package ports

import (
	"context"

	"github.com/policykb/taxkb/internal/core/domain"
)

// SearchFilter narrows full-text search over title and content.
type SearchFilter struct {
	Level   domain.Level
	TaxType string
	Limit   int
}

type PolicyRepository interface {
	// Upsert persists by identity; re-ingesting an unchanged document is a
	// no-op beyond the updated_at column.
	Upsert(ctx context.Context, doc *domain.PolicyDocument) error
	GetByID(ctx context.Context, id string) (*domain.PolicyDocument, error)
	GetByDocumentNumber(ctx context.Context, number string) (*domain.PolicyDocument, error)
	ListAll(ctx context.Context) ([]*domain.PolicyDocument, error)
	ListChildren(ctx context.Context, parentID string) ([]*domain.PolicyDocument, error)
	Search(ctx context.Context, query string, filter SearchFilter) ([]*domain.PolicyDocument, error)

	// SaveRelations rewrites the relationship fields computed by a build
	// pass: parent, root, chain, cited and related sets.
	SaveRelations(ctx context.Context, doc *domain.PolicyDocument) error
	// AppendCitedBy adds one identity to a cited_by set without replacing
	// the record; the statement is idempotent under concurrent discovery.
	AppendCitedBy(ctx context.Context, id, citedBy string) error
	SaveQuality(ctx context.Context, id string, score int, grade domain.Grade) error

	Delete(ctx context.Context, id string) error
}

type JobRepository interface {
	Create(ctx context.Context, job *domain.PipelineJob) error
	Get(ctx context.Context, id string) (*domain.PipelineJob, error)
	MarkRunning(ctx context.Context, id string, total int) error
	UpdateProgress(ctx context.Context, id string, processed int) error
	MarkFinished(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
}

type MessageQueue interface {
	PublishRawPolicy(ctx context.Context, raw domain.RawPolicy) error
	SubscribeRawPolicies(ctx context.Context, handler func(context.Context, domain.RawPolicy) error) error

	PublishStageTrigger(ctx context.Context, stage domain.PipelineStage, jobID string) error
	SubscribeStageTriggers(ctx context.Context, handler func(context.Context, domain.PipelineStage, string) error) error
}

// CitationGraph mirrors citation edges into a graph store for neighborhood
// queries. Sync failures must not fail the pipeline run.
type CitationGraph interface {
	SyncDocument(ctx context.Context, doc *domain.PolicyDocument) error
	Neighborhood(ctx context.Context, id string) (*domain.CitationGraph, error)
}
