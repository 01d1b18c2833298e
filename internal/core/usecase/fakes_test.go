package usecase

import (
	"context"
	"sync"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
)

type fakePolicyRepo struct {
	mu   sync.Mutex
	docs []*domain.PolicyDocument

	listErr error

	upserted      []*domain.PolicyDocument
	savedRelation []string
	appendedBy    map[string][]string
	savedQuality  map[string]int
	deleted       []string
}

func newFakePolicyRepo(docs ...*domain.PolicyDocument) *fakePolicyRepo {
	return &fakePolicyRepo{
		docs:         docs,
		appendedBy:   map[string][]string{},
		savedQuality: map[string]int{},
	}
}

func (f *fakePolicyRepo) Upsert(ctx context.Context, doc *domain.PolicyDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, doc)
	return nil
}

func (f *fakePolicyRepo) GetByID(ctx context.Context, id string) (*domain.PolicyDocument, error) {
	for _, d := range f.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, domain.ErrPolicyNotFound
}

func (f *fakePolicyRepo) GetByDocumentNumber(ctx context.Context, number string) (*domain.PolicyDocument, error) {
	for _, d := range f.docs {
		if d.DocumentNumber == number {
			return d, nil
		}
	}
	return nil, domain.ErrPolicyNotFound
}

func (f *fakePolicyRepo) ListAll(ctx context.Context) ([]*domain.PolicyDocument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*domain.PolicyDocument, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *fakePolicyRepo) ListChildren(ctx context.Context, parentID string) ([]*domain.PolicyDocument, error) {
	var out []*domain.PolicyDocument
	for _, d := range f.docs {
		if d.ParentID == parentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakePolicyRepo) Search(ctx context.Context, query string, filter ports.SearchFilter) ([]*domain.PolicyDocument, error) {
	return nil, nil
}

func (f *fakePolicyRepo) SaveRelations(ctx context.Context, doc *domain.PolicyDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedRelation = append(f.savedRelation, doc.ID)
	return nil
}

func (f *fakePolicyRepo) AppendCitedBy(ctx context.Context, id, citedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendedBy[id] = append(f.appendedBy[id], citedBy)
	return nil
}

func (f *fakePolicyRepo) SaveQuality(ctx context.Context, id string, score int, grade domain.Grade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedQuality[id] = score
	return nil
}

func (f *fakePolicyRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeQueue struct {
	published  []domain.RawPolicy
	triggered  []domain.PipelineStage
	publishErr error
}

func (f *fakeQueue) PublishRawPolicy(ctx context.Context, raw domain.RawPolicy) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, raw)
	return nil
}

func (f *fakeQueue) SubscribeRawPolicies(ctx context.Context, handler func(context.Context, domain.RawPolicy) error) error {
	return nil
}

func (f *fakeQueue) PublishStageTrigger(ctx context.Context, stage domain.PipelineStage, jobID string) error {
	f.triggered = append(f.triggered, stage)
	return nil
}

func (f *fakeQueue) SubscribeStageTriggers(ctx context.Context, handler func(context.Context, domain.PipelineStage, string) error) error {
	return nil
}

type fakeGraph struct {
	synced  []string
	syncErr error
}

func (f *fakeGraph) SyncDocument(ctx context.Context, doc *domain.PolicyDocument) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced = append(f.synced, doc.ID)
	return nil
}

func (f *fakeGraph) Neighborhood(ctx context.Context, id string) (*domain.CitationGraph, error) {
	return &domain.CitationGraph{ID: id}, nil
}

type jobEvent struct {
	name   string
	status domain.JobStatus
}

type fakeJobs struct {
	events []jobEvent
	total  int
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.PipelineJob) error {
	f.events = append(f.events, jobEvent{name: "create"})
	return nil
}

func (f *fakeJobs) Get(ctx context.Context, id string) (*domain.PipelineJob, error) {
	return nil, domain.ErrJobNotFound
}

func (f *fakeJobs) MarkRunning(ctx context.Context, id string, total int) error {
	f.total = total
	f.events = append(f.events, jobEvent{name: "running"})
	return nil
}

func (f *fakeJobs) UpdateProgress(ctx context.Context, id string, processed int) error {
	f.events = append(f.events, jobEvent{name: "progress"})
	return nil
}

func (f *fakeJobs) MarkFinished(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	f.events = append(f.events, jobEvent{name: "finished", status: status})
	return nil
}

func (f *fakeJobs) lastStatus() domain.JobStatus {
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].name == "finished" {
			return f.events[i].status
		}
	}
	return ""
}
