package domain

import "time"

// RawPolicy is the tuple supplied by the retrieval collaborator. Body may be
// empty or noisy; the pipeline degrades to absent fields, never fails.
type RawPolicy struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SourceURL string    `json:"source_url"`
	Source    string    `json:"source"`
	CrawledAt time.Time `json:"crawled_at"`
}
