package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
)

type CorpusValidator interface {
	ValidateAll(docs []*domain.PolicyDocument) domain.ValidationReport
	Deduplicate(docs []*domain.PolicyDocument) (toRemove []string, stats domain.DedupStats)
}

// ValidateCorpusUseCase removes duplicates, validates what remains and
// re-scores survivors so corrections feed back into ranking.
type ValidateCorpusUseCase struct {
	repo      ports.PolicyRepository
	jobs      ports.JobRepository
	validator CorpusValidator
	scorer    QualityScorer
}

func NewValidateCorpusUseCase(
	repo ports.PolicyRepository,
	jobs ports.JobRepository,
	validator CorpusValidator,
	scorer QualityScorer,
) *ValidateCorpusUseCase {
	return &ValidateCorpusUseCase{
		repo:      repo,
		jobs:      jobs,
		validator: validator,
		scorer:    scorer,
	}
}

type ValidateOutcome struct {
	Report domain.ValidationReport `json:"report"`
	Dedup  domain.DedupStats       `json:"dedup"`
}

// Run executes one validate stage under the given job. Deduplication keeps
// the earliest crawled copy and is idempotent: a second run deletes nothing.
func (uc *ValidateCorpusUseCase) Run(ctx context.Context, jobID string) (ValidateOutcome, error) {
	docs, err := uc.repo.ListAll(ctx)
	if err != nil {
		return ValidateOutcome{}, uc.fail(ctx, jobID, fmt.Errorf("load corpus: %w", err))
	}
	if uc.jobs != nil {
		if err := uc.jobs.MarkRunning(ctx, jobID, len(docs)); err != nil {
			return ValidateOutcome{}, fmt.Errorf("mark job running: %w", err)
		}
	}

	toRemove, dedupStats := uc.validator.Deduplicate(docs)
	removed := make(map[string]struct{}, len(toRemove))
	for _, id := range toRemove {
		if err := uc.repo.Delete(ctx, id); err != nil {
			return ValidateOutcome{}, uc.fail(ctx, jobID, fmt.Errorf("delete duplicate %s: %w", id, err))
		}
		removed[id] = struct{}{}
	}

	survivors := docs[:0]
	for _, doc := range docs {
		if _, gone := removed[doc.ID]; !gone {
			survivors = append(survivors, doc)
		}
	}

	report := uc.validator.ValidateAll(survivors)

	for _, doc := range survivors {
		breakdown := uc.scorer.Score(doc)
		if breakdown.Composite != doc.QualityScore || breakdown.Grade != doc.QualityGrade {
			if err := uc.repo.SaveQuality(ctx, doc.ID, breakdown.Composite, breakdown.Grade); err != nil {
				return ValidateOutcome{}, uc.fail(ctx, jobID, fmt.Errorf("save quality for %s: %w", doc.ID, err))
			}
		}
	}

	if uc.jobs != nil {
		if err := uc.jobs.MarkFinished(ctx, jobID, domain.JobCompleted, ""); err != nil {
			slog.Warn("job_finish_update_failed", "job_id", jobID, "error", err)
		}
	}
	slog.Info("validate_stage_completed",
		"total", report.Total,
		"valid", report.ValidCount,
		"invalid", report.InvalidCount,
		"removed", dedupStats.Removed,
		"similar_pairs", len(dedupStats.SimilarPairs),
	)
	return ValidateOutcome{Report: report, Dedup: dedupStats}, nil
}

func (uc *ValidateCorpusUseCase) fail(ctx context.Context, jobID string, err error) error {
	if uc.jobs != nil {
		if markErr := uc.jobs.MarkFinished(ctx, jobID, domain.JobFailed, err.Error()); markErr != nil {
			slog.Warn("job_fail_update_failed", "job_id", jobID, "error", markErr)
		}
	}
	return err
}
