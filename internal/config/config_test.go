package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("askolist-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug || cfg.Observability.LogJSON {
		t.Fatalf("Observability = %#v", cfg.Observability)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Dataset.Path != "data/olist.parquet" || cfg.Dataset.Name != "olist" {
		t.Fatalf("Dataset = %#v", cfg.Dataset)
	}
	if cfg.Assistant.MemoryTurns != 6 {
		t.Fatalf("Assistant.MemoryTurns = %d", cfg.Assistant.MemoryTurns)
	}
	if cfg.Assistant.SampleRows != 10 {
		t.Fatalf("Assistant.SampleRows = %d", cfg.Assistant.SampleRows)
	}
	if cfg.Assistant.ReadOnlySQL {
		t.Fatal("Assistant.ReadOnlySQL should default to false in dev")
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.ChatPath != "/v1/chat/completions" {
		t.Fatalf("LLM = %#v", cfg.LLM)
	}
	if cfg.Audit.Enabled {
		t.Fatal("Audit.Enabled should default to false")
	}
	if cfg.AskBudget() != 180*time.Second || cfg.HTTP.WriteTimeout <= cfg.AskBudget() {
		t.Fatalf("WriteTimeout = %s, AskBudget = %s", cfg.HTTP.WriteTimeout, cfg.AskBudget())
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("askolist-api", mapLookup(map[string]string{"ASKOLIST_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if !cfg.Assistant.ReadOnlySQL {
		t.Fatal("Assistant.ReadOnlySQL should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %#v", cfg.Observability)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ASKOLIST_PROFILE":                   "test",
		"ASKOLIST_SERVICE_NAME":              "askolist-custom",
		"ASKOLIST_HTTP_ADDR":                 ":9999",
		"ASKOLIST_HTTP_READ_TIMEOUT":         "2s",
		"ASKOLIST_DATASET_PATH":              "",
		"ASKOLIST_DATASET_SNAPSHOT_KEY":      "latest",
		"ASKOLIST_DATASET_WORK_DIR":          "/tmp/askolist",
		"ASKOLIST_OBJECTSTORE_BUCKET":        "datasets",
		"ASKOLIST_OBJECTSTORE_USE_SSL":       "true",
		"ASKOLIST_AUDIT_ENABLED":             "true",
		"ASKOLIST_AUDIT_DSN":                 "postgres://example",
		"ASKOLIST_AUDIT_MAX_OPEN_CONNS":      "4",
		"ASKOLIST_LLM_PROVIDER":              "anthropic",
		"ASKOLIST_LLM_MODEL":                 "claude-sonnet-4-5",
		"ASKOLIST_LLM_API_KEY":               "secret-key",
		"ASKOLIST_LLM_TEMPERATURE":           "0.3",
		"ASKOLIST_LLM_MAX_TOKENS":            "2048",
		"ASKOLIST_LLM_TIMEOUT":               "21s",
		"ASKOLIST_ASSISTANT_MEMORY_TURNS":    "3",
		"ASKOLIST_ASSISTANT_SAMPLE_ROWS":     "5",
		"ASKOLIST_ASSISTANT_QUERY_TIMEOUT":   "9s",
		"ASKOLIST_ASSISTANT_MAX_RESULT_ROWS": "0",
		"ASKOLIST_ASSISTANT_READ_ONLY_SQL":   "true",
		"ASKOLIST_LOG_LEVEL":                 "error",
		"ASKOLIST_LOG_JSON":                  "true",
		"ASKOLIST_AUTH_REQUIRED":             "true",
		"ASKOLIST_AUTH_STATIC_KEYS":          "k1:alice:asker",
	})
	cfg, err := Load("askolist-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "askolist-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %#v", cfg.HTTP)
	}
	if cfg.Dataset.Path != "" || cfg.Dataset.SnapshotKey != "latest" || cfg.Dataset.WorkDir != "/tmp/askolist" {
		t.Fatalf("Dataset = %#v", cfg.Dataset)
	}
	if cfg.ObjectStore.Bucket != "datasets" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %#v", cfg.ObjectStore)
	}
	if !cfg.Audit.Enabled || cfg.Audit.DSN != "postgres://example" || cfg.Audit.MaxOpenConns != 4 {
		t.Fatalf("Audit = %#v", cfg.Audit)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "claude-sonnet-4-5" || cfg.LLM.APIKey != "secret-key" {
		t.Fatalf("LLM = %#v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.3 || cfg.LLM.MaxTokens != 2048 || cfg.LLM.Timeout != 21*time.Second {
		t.Fatalf("LLM = %#v", cfg.LLM)
	}
	if cfg.Assistant.MemoryTurns != 3 || cfg.Assistant.SampleRows != 5 || cfg.Assistant.QueryTimeout != 9*time.Second {
		t.Fatalf("Assistant = %#v", cfg.Assistant)
	}
	if cfg.Assistant.MaxResultRows != 0 || !cfg.Assistant.ReadOnlySQL {
		t.Fatalf("Assistant = %#v", cfg.Assistant)
	}
	if cfg.Observability.LogLevel != slog.LevelError || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %#v", cfg.Observability)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:alice:asker" {
		t.Fatalf("Auth = %#v", cfg.Auth)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ASKOLIST_PROFILE": "oops"},
		{"ASKOLIST_HTTP_READ_TIMEOUT": "NaN"},
		{"ASKOLIST_AUDIT_MAX_OPEN_CONNS": "oops"},
		{"ASKOLIST_LLM_TEMPERATURE": "bad"},
		{"ASKOLIST_LLM_PROVIDER": "gemini"},
		{"ASKOLIST_LLM_MAX_TOKENS": "0"},
		{"ASKOLIST_ASSISTANT_MEMORY_TURNS": "0"},
		{"ASKOLIST_ASSISTANT_SAMPLE_ROWS": "0"},
		{"ASKOLIST_ASSISTANT_MAX_RESULT_ROWS": "-1"},
		{"ASKOLIST_DATASET_PATH": ""},
		{"ASKOLIST_AUDIT_ENABLED": "true", "ASKOLIST_AUDIT_DSN": ""},
		{"ASKOLIST_AUTH_REQUIRED": "not-bool"},
		{"ASKOLIST_LOG_LEVEL": "verbose"},
		{"ASKOLIST_HTTP_WRITE_TIMEOUT": "120s"},
		{"ASKOLIST_LLM_TIMEOUT": "60s"},
	}
	for _, env := range tests {
		if _, err := Load("askolist-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("askolist-api", nil); err == nil {
		t.Fatal("expected lookup error")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
