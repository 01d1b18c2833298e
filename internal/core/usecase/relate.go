package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
)

type RelationshipBuilder interface {
	Build(docs []*domain.PolicyDocument) domain.RelationStats
}

// RelateCorpusUseCase runs the relationship builder over the full classified
// corpus. The build itself is single-threaded per batch: chain walks must not
// race parent reassignments, and set updates are persisted through
// idempotent append statements so a rerun converges to the same graph.
type RelateCorpusUseCase struct {
	repo    ports.PolicyRepository
	jobs    ports.JobRepository
	builder RelationshipBuilder
	scorer  QualityScorer
	graph   ports.CitationGraph
}

func NewRelateCorpusUseCase(
	repo ports.PolicyRepository,
	jobs ports.JobRepository,
	builder RelationshipBuilder,
	scorer QualityScorer,
	graph ports.CitationGraph,
) *RelateCorpusUseCase {
	return &RelateCorpusUseCase{
		repo:    repo,
		jobs:    jobs,
		builder: builder,
		scorer:  scorer,
		graph:   graph,
	}
}

// Run executes one relate stage under the given job.
func (uc *RelateCorpusUseCase) Run(ctx context.Context, jobID string) (domain.RelationStats, error) {
	docs, err := uc.repo.ListAll(ctx)
	if err != nil {
		return domain.RelationStats{}, uc.fail(ctx, jobID, fmt.Errorf("load corpus: %w", err))
	}
	if uc.jobs != nil {
		if err := uc.jobs.MarkRunning(ctx, jobID, len(docs)); err != nil {
			return domain.RelationStats{}, fmt.Errorf("mark job running: %w", err)
		}
	}

	stats := uc.builder.Build(docs)

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, uc.fail(ctx, jobID, err)
		}

		if err := uc.repo.SaveRelations(ctx, doc); err != nil {
			return stats, uc.fail(ctx, jobID, fmt.Errorf("save relations for %s: %w", doc.ID, err))
		}
		for _, citedBy := range doc.CitedByIDs {
			if err := uc.repo.AppendCitedBy(ctx, doc.ID, citedBy); err != nil {
				return stats, uc.fail(ctx, jobID, fmt.Errorf("append cited_by for %s: %w", doc.ID, err))
			}
		}

		// Parent and chain feed the relationship sub-score.
		breakdown := uc.scorer.Score(doc)
		if breakdown.Composite != doc.QualityScore || breakdown.Grade != doc.QualityGrade {
			doc.QualityScore = breakdown.Composite
			doc.QualityGrade = breakdown.Grade
			if err := uc.repo.SaveQuality(ctx, doc.ID, doc.QualityScore, doc.QualityGrade); err != nil {
				return stats, uc.fail(ctx, jobID, fmt.Errorf("save quality for %s: %w", doc.ID, err))
			}
		}

		if uc.graph != nil {
			if err := uc.graph.SyncDocument(ctx, doc); err != nil {
				slog.Warn("citation_graph_sync_failed", "policy_id", doc.ID, "error", err)
			}
		}

		if uc.jobs != nil && (i+1)%50 == 0 {
			if err := uc.jobs.UpdateProgress(ctx, jobID, i+1); err != nil {
				slog.Warn("job_progress_update_failed", "job_id", jobID, "error", err)
			}
		}
	}

	if uc.jobs != nil {
		if err := uc.jobs.MarkFinished(ctx, jobID, domain.JobCompleted, ""); err != nil {
			slog.Warn("job_finish_update_failed", "job_id", jobID, "error", err)
		}
	}
	slog.Info("relate_stage_completed",
		"total", stats.Total,
		"with_parent", stats.WithParent,
		"with_chain", stats.WithChain,
		"with_related", stats.WithRelated,
		"qa_linked", stats.QALinked,
	)
	return stats, nil
}

func (uc *RelateCorpusUseCase) fail(ctx context.Context, jobID string, err error) error {
	if uc.jobs != nil {
		if markErr := uc.jobs.MarkFinished(ctx, jobID, domain.JobFailed, err.Error()); markErr != nil {
			slog.Warn("job_fail_update_failed", "job_id", jobID, "error", markErr)
		}
	}
	return err
}
