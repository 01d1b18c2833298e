package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/core/ports"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type PolicyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PolicyRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS policies (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	origin_url TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	document_type TEXT NOT NULL,
	tax_category TEXT NOT NULL,
	tax_types JSONB NOT NULL DEFAULT '[]'::jsonb,
	document_number TEXT NOT NULL DEFAULT '',
	issuing_authority TEXT NOT NULL DEFAULT '',
	authority_type TEXT NOT NULL DEFAULT '',
	publish_date TIMESTAMPTZ,
	effective_date TIMESTAMPTZ,
	expiry_date TIMESTAMPTZ,
	validity_status TEXT NOT NULL DEFAULT 'unknown',
	parent_id TEXT NOT NULL DEFAULT '',
	root_id TEXT NOT NULL DEFAULT '',
	legislation_chain JSONB NOT NULL DEFAULT '[]'::jsonb,
	related_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	cited_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	cited_by_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	content TEXT NOT NULL DEFAULT '',
	key_points JSONB NOT NULL DEFAULT '[]'::jsonb,
	qa_pairs JSONB NOT NULL DEFAULT '[]'::jsonb,
	quality_score INTEGER NOT NULL DEFAULT 0,
	quality_grade TEXT NOT NULL DEFAULT 'D',
	crawled_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_document_number ON policies(document_number) WHERE document_number <> '';
CREATE INDEX IF NOT EXISTS idx_policies_origin_url ON policies(origin_url);
CREATE INDEX IF NOT EXISTS idx_policies_level ON policies(level);
CREATE INDEX IF NOT EXISTS idx_policies_parent_id ON policies(parent_id) WHERE parent_id <> '';
CREATE INDEX IF NOT EXISTS idx_policies_root_id ON policies(root_id) WHERE root_id <> '';
CREATE INDEX IF NOT EXISTS idx_policies_fts ON policies USING GIN (to_tsvector('simple', title || ' ' || content));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const policyColumns = `
id, title, source, origin_url, region, level, document_type, tax_category, tax_types,
document_number, issuing_authority, authority_type,
publish_date, effective_date, expiry_date, validity_status,
parent_id, root_id, legislation_chain, related_ids, cited_ids, cited_by_ids,
content, key_points, qa_pairs, quality_score, quality_grade, crawled_at, updated_at`

// Upsert persists by identity. Re-ingesting keeps the earliest crawled_at so
// the original provenance wins over later copies of the same page.
func (r *PolicyRepository) Upsert(ctx context.Context, doc *domain.PolicyDocument) error {
	taxTypes, keyPoints, qaPairs, chain, related, cited, citedBy, err := marshalSets(doc)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO policies (`+policyColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	source = EXCLUDED.source,
	origin_url = EXCLUDED.origin_url,
	region = EXCLUDED.region,
	level = EXCLUDED.level,
	document_type = EXCLUDED.document_type,
	tax_category = EXCLUDED.tax_category,
	tax_types = EXCLUDED.tax_types,
	document_number = EXCLUDED.document_number,
	issuing_authority = EXCLUDED.issuing_authority,
	authority_type = EXCLUDED.authority_type,
	publish_date = EXCLUDED.publish_date,
	effective_date = EXCLUDED.effective_date,
	expiry_date = EXCLUDED.expiry_date,
	validity_status = EXCLUDED.validity_status,
	content = EXCLUDED.content,
	key_points = EXCLUDED.key_points,
	qa_pairs = EXCLUDED.qa_pairs,
	quality_score = EXCLUDED.quality_score,
	quality_grade = EXCLUDED.quality_grade,
	crawled_at = LEAST(policies.crawled_at, EXCLUDED.crawled_at),
	updated_at = EXCLUDED.updated_at
`,
		doc.ID, doc.Title, doc.Source, doc.OriginURL, doc.Region,
		string(doc.Level), string(doc.DocumentType), string(doc.TaxCategory), taxTypes,
		doc.DocumentNumber, doc.IssuingAuthority, doc.AuthorityType,
		nullTime(doc.PublishDate), nullTime(doc.EffectiveDate), nullTime(doc.ExpiryDate), string(doc.ValidityStatus),
		doc.ParentID, doc.RootID, chain, related, cited, citedBy,
		doc.Content, keyPoints, qaPairs, doc.QualityScore, string(doc.QualityGrade),
		doc.CrawledAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*domain.PolicyDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id)
	doc, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPolicyNotFound, "get policy", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return doc, nil
}

func (r *PolicyRepository) GetByDocumentNumber(ctx context.Context, number string) (*domain.PolicyDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE document_number = $1 LIMIT 1`, number)
	doc, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPolicyNotFound, "get policy by number", fmt.Errorf("number %s", number))
		}
		return nil, fmt.Errorf("scan policy: %w", err)
	}
	return doc, nil
}

func (r *PolicyRepository) ListAll(ctx context.Context) ([]*domain.PolicyDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (r *PolicyRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.PolicyDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (r *PolicyRepository) Search(ctx context.Context, query string, filter ports.SearchFilter) ([]*domain.PolicyDocument, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	taxTypeJSON, err := json.Marshal([]string{filter.TaxType})
	if err != nil {
		return nil, fmt.Errorf("marshal tax type filter: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+policyColumns+`
FROM policies
WHERE ($1 = '' OR to_tsvector('simple', title || ' ' || content) @@ plainto_tsquery('simple', $1) OR title ILIKE '%' || $1 || '%')
  AND ($2 = '' OR level = $2)
  AND ($3 = '' OR tax_types @> $4::jsonb)
ORDER BY quality_score DESC, id
LIMIT $5
`, query, string(filter.Level), filter.TaxType, taxTypeJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("search policies: %w", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// SaveRelations rewrites the relationship fields computed by a build pass.
// cited_by_ids is excluded: symmetric updates go through AppendCitedBy.
func (r *PolicyRepository) SaveRelations(ctx context.Context, doc *domain.PolicyDocument) error {
	chain, err := json.Marshal(emptyIfNil(doc.LegislationChain))
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	related, err := json.Marshal(emptyIfNil(doc.RelatedIDs))
	if err != nil {
		return fmt.Errorf("marshal related: %w", err)
	}
	cited, err := json.Marshal(emptyIfNil(doc.CitedIDs))
	if err != nil {
		return fmt.Errorf("marshal cited: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE policies
SET parent_id = $2, root_id = $3, legislation_chain = $4, related_ids = $5, cited_ids = $6, updated_at = $7
WHERE id = $1
`, doc.ID, doc.ParentID, doc.RootID, chain, related, cited, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save relations: %w", err)
	}
	return requireRow(res, doc.ID)
}

// AppendCitedBy adds one identity to the cited_by set. The containment guard
// makes the statement idempotent and avoids full-record replaces, so
// concurrent mutual-citation discovery cannot lose updates.
func (r *PolicyRepository) AppendCitedBy(ctx context.Context, id, citedBy string) error {
	element, err := json.Marshal([]string{citedBy})
	if err != nil {
		return fmt.Errorf("marshal cited_by element: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE policies
SET cited_by_ids = CASE
		WHEN cited_by_ids @> $2::jsonb THEN cited_by_ids
		ELSE cited_by_ids || $2::jsonb
	END,
	updated_at = $3
WHERE id = $1
`, id, element, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append cited_by: %w", err)
	}
	return requireRow(res, id)
}

func (r *PolicyRepository) SaveQuality(ctx context.Context, id string, score int, grade domain.Grade) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE policies
SET quality_score = $2, quality_grade = $3, updated_at = $4
WHERE id = $1
`, id, score, string(grade), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save quality: %w", err)
	}
	return requireRow(res, id)
}

func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrPolicyNotFound, "update policy", fmt.Errorf("id %s", id))
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalSets(doc *domain.PolicyDocument) (taxTypes, keyPoints, qaPairs, chain, related, cited, citedBy []byte, err error) {
	if taxTypes, err = json.Marshal(emptyIfNil(doc.TaxTypes)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal tax types: %w", err)
	}
	if keyPoints, err = json.Marshal(emptyIfNil(doc.KeyPoints)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal key points: %w", err)
	}
	pairs := doc.QAPairs
	if pairs == nil {
		pairs = []domain.QAPair{}
	}
	if qaPairs, err = json.Marshal(pairs); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal qa pairs: %w", err)
	}
	if chain, err = json.Marshal(emptyIfNil(doc.LegislationChain)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal chain: %w", err)
	}
	if related, err = json.Marshal(emptyIfNil(doc.RelatedIDs)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal related: %w", err)
	}
	if cited, err = json.Marshal(emptyIfNil(doc.CitedIDs)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal cited: %w", err)
	}
	if citedBy, err = json.Marshal(emptyIfNil(doc.CitedByIDs)); err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("marshal cited_by: %w", err)
	}
	return taxTypes, keyPoints, qaPairs, chain, related, cited, citedBy, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.PolicyDocument, error) {
	var (
		doc                                      domain.PolicyDocument
		level, docType, taxCategory, validity    string
		grade                                    string
		taxTypes, chain, related, cited, citedBy []byte
		keyPoints, qaPairs                       []byte
		publishDate, effectiveDate, expiryDate   sql.NullTime
	)

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Source, &doc.OriginURL, &doc.Region,
		&level, &docType, &taxCategory, &taxTypes,
		&doc.DocumentNumber, &doc.IssuingAuthority, &doc.AuthorityType,
		&publishDate, &effectiveDate, &expiryDate, &validity,
		&doc.ParentID, &doc.RootID, &chain, &related, &cited, &citedBy,
		&doc.Content, &keyPoints, &qaPairs, &doc.QualityScore, &grade,
		&doc.CrawledAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Level = domain.Level(level)
	doc.DocumentType = domain.DocumentType(docType)
	doc.TaxCategory = domain.TaxCategory(taxCategory)
	doc.ValidityStatus = domain.ValidityStatus(validity)
	doc.QualityGrade = domain.Grade(grade)

	if publishDate.Valid {
		t := publishDate.Time
		doc.PublishDate = &t
	}
	if effectiveDate.Valid {
		t := effectiveDate.Time
		doc.EffectiveDate = &t
	}
	if expiryDate.Valid {
		t := expiryDate.Time
		doc.ExpiryDate = &t
	}

	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{taxTypes, &doc.TaxTypes},
		{chain, &doc.LegislationChain},
		{related, &doc.RelatedIDs},
		{cited, &doc.CitedIDs},
		{citedBy, &doc.CitedByIDs},
		{keyPoints, &doc.KeyPoints},
		{qaPairs, &doc.QAPairs},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("unmarshal jsonb field: %w", err)
		}
	}
	return &doc, nil
}

func scanPolicies(rows *sql.Rows) ([]*domain.PolicyDocument, error) {
	var out []*domain.PolicyDocument
	for rows.Next() {
		doc, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy row: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return out, nil
}
