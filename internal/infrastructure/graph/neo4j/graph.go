// Package neo4j mirrors the citation edges into a graph store. Postgres stays
// the source of truth; the mirror exists for neighborhood queries.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/policykb/taxkb/internal/core/domain"
)

type Graph struct {
	driver neo4j.DriverWithContext
}

func New(ctx context.Context, uri, user, password string) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Graph{driver: driver}, nil
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// SyncDocument upserts the node and rewrites its outgoing CITES edges so a
// rebuilt citation set fully replaces the previous one.
func (g *Graph) SyncDocument(ctx context.Context, doc *domain.PolicyDocument) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
MERGE (p:Policy {id: $id})
SET p.title = $title, p.level = $level, p.document_type = $document_type
WITH p
OPTIONAL MATCH (p)-[r:CITES]->()
DELETE r
`, map[string]any{
			"id":            doc.ID,
			"title":         doc.Title,
			"level":         string(doc.Level),
			"document_type": string(doc.DocumentType),
		})
		if err != nil {
			return nil, fmt.Errorf("merge policy node: %w", err)
		}

		if len(doc.CitedIDs) > 0 {
			_, err = tx.Run(ctx, `
MATCH (p:Policy {id: $id})
UNWIND $cited AS citedID
MERGE (c:Policy {id: citedID})
MERGE (p)-[:CITES]->(c)
`, map[string]any{
				"id":    doc.ID,
				"cited": doc.CitedIDs,
			})
			if err != nil {
				return nil, fmt.Errorf("merge cites edges: %w", err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync policy %s: %w", doc.ID, err)
	}
	return nil
}

func (g *Graph) Neighborhood(ctx context.Context, id string) (*domain.CitationGraph, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
MATCH (p:Policy {id: $id})
OPTIONAL MATCH (p)-[:CITES]->(out:Policy)
OPTIONAL MATCH (in:Policy)-[:CITES]->(p)
RETURN p.title AS title,
	collect(DISTINCT {id: out.id, title: out.title, level: out.level}) AS cites,
	collect(DISTINCT {id: in.id, title: in.title, level: in.level}) AS cited_by
`, map[string]any{"id": id})
		if err != nil {
			return nil, fmt.Errorf("run neighborhood query: %w", err)
		}

		record, err := records.Single(ctx)
		if err != nil {
			return nil, domain.WrapError(domain.ErrPolicyNotFound, "graph neighborhood", fmt.Errorf("id %s", id))
		}

		graph := &domain.CitationGraph{ID: id}
		if title, ok := record.Get("title"); ok {
			graph.Title, _ = title.(string)
		}
		if cites, ok := record.Get("cites"); ok {
			graph.Cites = collectNodes(cites)
		}
		if citedBy, ok := record.Get("cited_by"); ok {
			graph.CitedBy = collectNodes(citedBy)
		}
		return graph, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.CitationGraph), nil
}

func collectNodes(raw any) []domain.CitationNode {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var nodes []domain.CitationNode
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := fields["id"].(string)
		if id == "" {
			continue
		}
		title, _ := fields["title"].(string)
		level, _ := fields["level"].(string)
		nodes = append(nodes, domain.CitationNode{
			ID:    id,
			Title: title,
			Level: domain.Level(level),
		})
	}
	return nodes
}
