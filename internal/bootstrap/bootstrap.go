package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/policykb/taxkb/internal/config"
	"github.com/policykb/taxkb/internal/core/ports"
	"github.com/policykb/taxkb/internal/core/usecase"
	graphneo4j "github.com/policykb/taxkb/internal/infrastructure/graph/neo4j"
	natsqueue "github.com/policykb/taxkb/internal/infrastructure/queue/nats"
	"github.com/policykb/taxkb/internal/infrastructure/report/excel"
	"github.com/policykb/taxkb/internal/infrastructure/repository/postgres"
	"github.com/policykb/taxkb/internal/infrastructure/resilience"
	"github.com/policykb/taxkb/internal/pipeline/classify"
	"github.com/policykb/taxkb/internal/pipeline/extract"
	"github.com/policykb/taxkb/internal/pipeline/relate"
	"github.com/policykb/taxkb/internal/pipeline/score"
	"github.com/policykb/taxkb/internal/pipeline/validate"
	"github.com/policykb/taxkb/internal/rules"
)

type App struct {
	Config config.Config

	Queue      *natsqueue.Queue
	PolicyRepo ports.PolicyRepository
	JobRepo    ports.JobRepository
	Graph      ports.CitationGraph

	IngestUC   *usecase.IngestPolicyUseCase
	RelateUC   *usecase.RelateCorpusUseCase
	ValidateUC *usecase.ValidateCorpusUseCase
	ReportUC   *usecase.QualityReportUseCase
	Exporter   *excel.Writer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	ruleset, err := loadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	policyRepo := postgres.NewPolicyRepository(db)
	if err := policyRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure policy schema: %w", err)
	}
	jobRepo := postgres.NewJobRepository(db)
	if err := jobRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure job schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSStageSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var graph ports.CitationGraph
	var graphClose func()
	if cfg.Neo4jEnabled {
		neoGraph, err := graphneo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, fmt.Errorf("init citation graph: %w", err)
		}
		graph = neoGraph
		graphClose = func() {
			_ = neoGraph.Close(context.Background())
		}
	}

	extractor := extract.New(ruleset)
	classifier := classify.New(ruleset)
	scorer := score.New()
	builder := relate.New(ruleset)
	validator := validate.New(ruleset)

	ingestUC := usecase.NewIngestPolicyUseCase(policyRepo, queue, extractor, classifier, scorer, graph)
	relateUC := usecase.NewRelateCorpusUseCase(policyRepo, jobRepo, builder, scorer, graph)
	validateUC := usecase.NewValidateCorpusUseCase(policyRepo, jobRepo, validator, scorer)
	reportUC := usecase.NewQualityReportUseCase(policyRepo, scorer)

	return &App{
		Config: cfg,

		Queue:      queue,
		PolicyRepo: policyRepo,
		JobRepo:    jobRepo,
		Graph:      graph,

		IngestUC:   ingestUC,
		RelateUC:   relateUC,
		ValidateUC: validateUC,
		ReportUC:   reportUC,
		Exporter:   excel.NewWriter(),

		closeFn: func() {
			queue.Close()
			if graphClose != nil {
				graphClose()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func loadRules(path string) (*rules.Ruleset, error) {
	if path == "" {
		return rules.Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return rules.Parse(raw)
}
