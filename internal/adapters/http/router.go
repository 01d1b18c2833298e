package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
	"github.com/policykb/taxkb/internal/observability/metrics"
)

type PolicySubmitter interface {
	Submit(ctx context.Context, raw domain.RawPolicy) error
}

type ReportBuilder interface {
	Build(ctx context.Context) (*domain.QualityReport, error)
}

type ReportExporter interface {
	Write(out io.Writer, report *domain.QualityReport) error
}

type RouterOptions struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.HTTPServerMetrics
}

type Router struct {
	submitter PolicySubmitter
	repo      ports.PolicyRepository
	jobs      ports.JobRepository
	queue     ports.MessageQueue
	reports   ReportBuilder
	exporter  ReportExporter
	graph     ports.CitationGraph

	opts RouterOptions
}

func NewRouter(
	submitter PolicySubmitter,
	repo ports.PolicyRepository,
	jobs ports.JobRepository,
	queue ports.MessageQueue,
	reports ReportBuilder,
	exporter ReportExporter,
	graph ports.CitationGraph,
	opts RouterOptions,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	return &Router{
		submitter: submitter,
		repo:      repo,
		jobs:      jobs,
		queue:     queue,
		reports:   reports,
		exporter:  exporter,
		graph:     graph,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/policies", rt.submitPolicy)
	mux.HandleFunc("/v1/policies/", rt.policySubresource)
	mux.HandleFunc("/v1/policies/search", rt.search)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/pipeline/relate", rt.triggerStage(domain.StageRelate))
	mux.HandleFunc("/v1/pipeline/validate", rt.triggerStage(domain.StageValidate))
	mux.HandleFunc("/v1/pipeline/jobs/", rt.getJob)
	mux.HandleFunc("/v1/reports/quality", rt.qualityReport)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	handler = rateLimitMiddleware(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, handler)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) submitPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Title     string     `json:"title"`
		Body      string     `json:"body"`
		SourceURL string     `json:"source_url"`
		Source    string     `json:"source"`
		CrawledAt *time.Time `json:"crawled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	raw := domain.RawPolicy{
		Title:     req.Title,
		Body:      req.Body,
		SourceURL: req.SourceURL,
		Source:    req.Source,
	}
	if req.CrawledAt != nil {
		raw.CrawledAt = *req.CrawledAt
	}

	if err := rt.submitter.Submit(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordIngestAccepted(rt.opts.Service)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (rt *Router) policySubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/policies/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "policy id is required"})
		return
	}

	id, sub := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		id, sub = rest[:i], rest[i+1:]
	}

	switch sub {
	case "":
		rt.getPolicy(w, r, id)
	case "children":
		rt.getChildren(w, r, id)
	case "chain":
		rt.getChain(w, r, id)
	case "citations":
		rt.getCitations(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) getPolicy(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getChildren(w http.ResponseWriter, r *http.Request, id string) {
	children, err := rt.repo.ListChildren(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if children == nil {
		children = []*domain.PolicyDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parent_id": id, "children": children})
}

// getChain resolves the stored chain identities to summaries; entries whose
// documents have since been removed are skipped rather than erroring.
func (rt *Router) getChain(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	chain := make([]domain.CitationNode, 0, len(doc.LegislationChain))
	for _, chainID := range doc.LegislationChain {
		if chainID == doc.ID {
			chain = append(chain, domain.CitationNode{ID: doc.ID, Title: doc.Title, Level: doc.Level})
			continue
		}
		linked, err := rt.repo.GetByID(r.Context(), chainID)
		if err != nil {
			continue
		}
		chain = append(chain, domain.CitationNode{ID: linked.ID, Title: linked.Title, Level: linked.Level})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      doc.ID,
		"root_id": doc.RootID,
		"chain":   chain,
	})
}

func (rt *Router) getCitations(w http.ResponseWriter, r *http.Request, id string) {
	if rt.graph != nil {
		neighborhood, err := rt.graph.Neighborhood(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, neighborhood)
			return
		}
		if domain.IsKind(err, domain.ErrPolicyNotFound) {
			writeError(w, err)
			return
		}
		slog.Warn("citation_graph_query_failed", "policy_id", id, "error", err)
	}

	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	graph := &domain.CitationGraph{
		ID:      doc.ID,
		Title:   doc.Title,
		Cites:   rt.resolveNodes(r.Context(), doc.CitedIDs),
		CitedBy: rt.resolveNodes(r.Context(), doc.CitedByIDs),
	}
	writeJSON(w, http.StatusOK, graph)
}

func (rt *Router) resolveNodes(ctx context.Context, ids []string) []domain.CitationNode {
	nodes := make([]domain.CitationNode, 0, len(ids))
	for _, id := range ids {
		doc, err := rt.repo.GetByID(ctx, id)
		if err != nil {
			nodes = append(nodes, domain.CitationNode{ID: id})
			continue
		}
		nodes = append(nodes, domain.CitationNode{ID: doc.ID, Title: doc.Title, Level: doc.Level})
	}
	return nodes
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	filter := ports.SearchFilter{
		Level:   domain.Level(strings.TrimSpace(r.URL.Query().Get("level"))),
		TaxType: strings.TrimSpace(r.URL.Query().Get("tax_type")),
	}
	if limitRaw := r.URL.Query().Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	docs, err := rt.repo.Search(r.Context(), query, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []*domain.PolicyDocument{}
	}
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordSearch(rt.opts.Service, len(docs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": docs})
}

func (rt *Router) triggerStage(stage domain.PipelineStage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		now := time.Now().UTC()
		job := &domain.PipelineJob{
			ID:        uuid.NewString(),
			Stage:     stage,
			Status:    domain.JobPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := rt.jobs.Create(r.Context(), job); err != nil {
			writeError(w, fmt.Errorf("create job: %w", err))
			return
		}
		if err := rt.queue.PublishStageTrigger(r.Context(), stage, job.ID); err != nil {
			if markErr := rt.jobs.MarkFinished(r.Context(), job.ID, domain.JobFailed, err.Error()); markErr != nil {
				slog.Warn("job_fail_update_failed", "job_id", job.ID, "error", markErr)
			}
			writeError(w, err)
			return
		}
		if rt.opts.Metrics != nil {
			rt.opts.Metrics.RecordStageTrigger(rt.opts.Service, string(stage))
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/pipeline/jobs/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}

	job, err := rt.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) qualityReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	report, err := rt.reports.Build(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordReportExport(rt.opts.Service, format)
	}

	if format == "xlsx" {
		if rt.exporter == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "xlsx export is not configured"})
			return
		}
		var buf bytes.Buffer
		if err := rt.exporter.Write(&buf, report); err != nil {
			writeError(w, fmt.Errorf("export workbook: %w", err))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="quality-report.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
