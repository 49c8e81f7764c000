// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.MaxConcurrent != 10 {
		t.Errorf("max_concurrent = %d, want 10", cfg.Server.MaxConcurrent)
	}
	if cfg.Providers.CooldownMinutes != 30 {
		t.Errorf("cooldown_minutes = %d, want 30", cfg.Providers.CooldownMinutes)
	}
}

func TestTOMLRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Server.Port = 9100
	cfg.Providers.CerebrasKey = "csk-test"
	cfg.Retrieval.SupabaseURL = "https://example.supabase.co"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", loaded.Server.Port)
	}
	if loaded.Providers.CerebrasKey != "csk-test" {
		t.Errorf("cerebras_key = %q", loaded.Providers.CerebrasKey)
	}
	// Defaults fill fields the file omitted.
	if loaded.Rerank.Model != "rerank-v3.5" {
		t.Errorf("rerank model = %q", loaded.Rerank.Model)
	}
}

func TestJSONRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Client.UserID = "alice"
	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Client.UserID != "alice" {
		t.Errorf("user_id = %q, want alice", loaded.Client.UserID)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCIQUERY_PORT", "9999")
	t.Setenv("SCIQUERY_GROQ_KEY", "gsk-env")
	t.Setenv("SCIQUERY_USER", "env-user")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Providers.GroqKey != "gsk-env" {
		t.Errorf("groq_key = %q", cfg.Providers.GroqKey)
	}
	if cfg.Client.UserID != "env-user" {
		t.Errorf("user_id = %q", cfg.Client.UserID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }, "server.max_concurrent"},
		{"negative cooldown", func(c *Config) { c.Providers.CooldownMinutes = -1 }, "providers.cooldown_minutes"},
		{"bad supabase url", func(c *Config) { c.Retrieval.SupabaseURL = "not a url" }, "retrieval.supabase_url"},
		{"bad theme", func(c *Config) { c.Client.Theme = "neon" }, "client.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted bad config")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestGetSetDotNotation(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("server.port", "9200"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want 9200", cfg.Server.Port)
	}

	if err := cfg.Set("providers.query_rewriting", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !cfg.Providers.QueryRewriting {
		t.Error("query_rewriting not set")
	}

	got, err := cfg.Get("client.theme")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "dark" {
		t.Errorf("theme = %v, want dark", got)
	}

	if _, err := cfg.Get("no.such.key"); err == nil {
		t.Error("Get accepted unknown key")
	}
}

func TestProviderKeysOmitsUnconfigured(t *testing.T) {
	cfg := Default()
	cfg.Providers.CerebrasKey = "csk"
	cfg.Providers.SambanovaKey = "snk"

	keys := cfg.ProviderKeys()
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2 entries", keys)
	}
	if keys["cerebras"] != "csk" || keys["sambanova"] != "snk" {
		t.Errorf("keys = %v", keys)
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Providers.CerebrasKey = "csk-secret"
	cfg.Rerank.CohereKey = "co-secret"
	cfg.Search.TavilyKey = "tvly-secret"

	out := cfg.String()
	for _, secret := range []string{"csk-secret", "co-secret", "tvly-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("String leaked %q", secret)
		}
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String did not redact anything")
	}
	// The original is untouched.
	if cfg.Providers.CerebrasKey != "csk-secret" {
		t.Error("String mutated the config")
	}
}

func TestSetDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Retrieval.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("embedding_model = %q", cfg.Retrieval.EmbeddingModel)
	}
	if cfg.Client.ServerURL != "http://127.0.0.1:8000" {
		t.Errorf("server_url = %q", cfg.Client.ServerURL)
	}
}
