package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/pipeline/relate"
	"github.com/policykb/taxkb/internal/pipeline/score"
	"github.com/policykb/taxkb/internal/rules"
)

func relateCorpus() []*domain.PolicyDocument {
	return []*domain.PolicyDocument{
		{
			ID:       "law-vat",
			Title:    "Value-Added Tax Law",
			Level:    domain.LevelLaw,
			TaxTypes: []string{"vat"},
			Content:  "Adopted by the legislature.",
		},
		{
			ID:       "circ-1",
			Title:    "Notice on VAT Credit Refunds",
			Level:    domain.LevelMinisterial,
			TaxTypes: []string{"vat"},
			Content:  "Issued pursuant to the Value-Added Tax Law.",
		},
	}
}

func newRelateUseCase(t *testing.T, repo *fakePolicyRepo, jobs *fakeJobs, graph *fakeGraph) *RelateCorpusUseCase {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	uc := NewRelateCorpusUseCase(repo, jobs, relate.New(rs), score.New(), nil)
	if graph != nil {
		uc.graph = graph
	}
	return uc
}

func TestRelateRunPersistsRelationsAndRescores(t *testing.T) {
	repo := newFakePolicyRepo(relateCorpus()...)
	jobs := &fakeJobs{}
	graph := &fakeGraph{}
	uc := newRelateUseCase(t, repo, jobs, graph)

	stats, err := uc.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if stats.Total != 2 || stats.WithParent != 1 || stats.WithChain != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	if len(repo.savedRelation) != 2 {
		t.Fatalf("saved relations for %v, want both documents", repo.savedRelation)
	}
	if got := repo.appendedBy["law-vat"]; len(got) != 1 || got[0] != "circ-1" {
		t.Fatalf("appended cited_by = %v", got)
	}

	// The notice gained a parent and chain, so its composite moved.
	if _, ok := repo.savedQuality["circ-1"]; !ok {
		t.Fatalf("circ-1 quality not re-persisted: %v", repo.savedQuality)
	}

	if len(graph.synced) != 2 {
		t.Fatalf("graph synced = %v", graph.synced)
	}
	if jobs.total != 2 || jobs.lastStatus() != domain.JobCompleted {
		t.Fatalf("job lifecycle = %+v", jobs)
	}
}

func TestRelateRunMarksJobFailedOnLoadError(t *testing.T) {
	repo := newFakePolicyRepo()
	repo.listErr = errors.New("connection refused")
	jobs := &fakeJobs{}
	uc := newRelateUseCase(t, repo, jobs, nil)

	_, err := uc.Run(context.Background(), "job-2")
	if err == nil {
		t.Fatalf("expected error")
	}
	if jobs.lastStatus() != domain.JobFailed {
		t.Fatalf("job status = %q, want failed", jobs.lastStatus())
	}
}

func TestRelateRunWithoutJobTracking(t *testing.T) {
	repo := newFakePolicyRepo(relateCorpus()...)
	uc := newRelateUseCase(t, repo, nil, nil)
	uc.jobs = nil

	if _, err := uc.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run without job repo: %v", err)
	}
}
