package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "")
	t.Setenv("NATS_INGEST_SUBJECT", "")
	t.Setenv("NATS_STAGE_SUBJECT", "")
	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("NEO4J_ENABLED", "")

	cfg := Load()
	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.NATSIngestSubject != "policies.ingest" {
		t.Fatalf("expected default ingest subject, got %q", cfg.NATSIngestSubject)
	}
	if cfg.NATSStageSubject != "pipeline.stages" {
		t.Fatalf("expected default stage subject, got %q", cfg.NATSStageSubject)
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("expected default rate limit 20, got %v", cfg.RateLimitRPS)
	}
	if cfg.Neo4jEnabled {
		t.Fatalf("expected neo4j disabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("RATE_LIMIT_RPS", "5.5")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("NEO4J_ENABLED", "true")

	cfg := Load()
	if cfg.APIPort != "9999" {
		t.Fatalf("expected api port override, got %q", cfg.APIPort)
	}
	if cfg.RateLimitRPS != 5.5 {
		t.Fatalf("expected rate limit 5.5, got %v", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 10 {
		t.Fatalf("expected burst 10, got %d", cfg.RateLimitBurst)
	}
	if !cfg.Neo4jEnabled {
		t.Fatalf("expected neo4j enabled")
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "nope")

	cfg := Load()
	if cfg.RateLimitBurst != 40 {
		t.Fatalf("expected fallback burst 40, got %d", cfg.RateLimitBurst)
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("expected fallback rps 20, got %v", cfg.RateLimitRPS)
	}
}
