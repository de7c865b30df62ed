package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8000},
		LLM:     LLMConfig{APIKey: "llm-key"},
		Library: LibraryConfig{APIKey: "library-key"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.PlannerTemperature != 0.1 {
		t.Errorf("planner temperature = %v", cfg.LLM.PlannerTemperature)
	}
	if cfg.Library.ManifestURL != "https://iiif.nli.org.il/IIIFv21/{recordId}/manifest" {
		t.Errorf("manifest url = %q", cfg.Library.ManifestURL)
	}
	if cfg.Library.SearchTimeout().Seconds() != 35 {
		t.Errorf("search timeout = %v", cfg.Library.SearchTimeout())
	}
	if cfg.Pipeline.FallbackLanguage != "he" {
		t.Errorf("fallback language = %q", cfg.Pipeline.FallbackLanguage)
	}
	if cfg.AskBudget() != 140*time.Second {
		t.Errorf("ask budget = %v, want 140s", cfg.AskBudget())
	}
	if cfg.HTTP.WriteTimeoutSec != 150 {
		t.Errorf("write timeout = %d, want 150", cfg.HTTP.WriteTimeoutSec)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingKeys(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("expected llm.api_key error, got %v", err)
	}

	cfg = validConfig()
	cfg.Library.APIKey = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "library.api_key") {
		t.Fatalf("expected library.api_key error, got %v", err)
	}
}

func TestValidate_BadURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Library.SearchURL = "ftp://example.org/search"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "library.search_url") {
		t.Fatalf("expected search_url error, got %v", err)
	}

	cfg = validConfig()
	cfg.Library.ManifestURL = "https://example.org/manifest"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "{recordId}") {
		t.Fatalf("expected manifest_url error, got %v", err)
	}
}

func TestValidate_FallbackLanguage(t *testing.T) {
	for _, lang := range []string{"he", "en"} {
		cfg := validConfig()
		cfg.Pipeline.FallbackLanguage = lang
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error for %q: %v", lang, err)
		}
	}

	cfg := validConfig()
	cfg.Pipeline.FallbackLanguage = "fr"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported fallback language")
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("BIBLIO_TEST_LLM_KEY", "from-env")

	cfg, err := Parse([]byte(`
http:
  port: 8000
llm:
  api_key: ${BIBLIO_TEST_LLM_KEY}
library:
  api_key: ${BIBLIO_TEST_LIBRARY_KEY:-fallback-key}
  max_concurrency: 4
pipeline:
  debug: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("llm api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Library.APIKey != "fallback-key" {
		t.Errorf("library api key = %q", cfg.Library.APIKey)
	}
	if cfg.Library.MaxConcurrency != 4 {
		t.Errorf("max concurrency = %d", cfg.Library.MaxConcurrency)
	}
	if !cfg.Pipeline.Debug {
		t.Error("expected debug enabled")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8000\n")); err == nil {
		t.Fatal("expected validation error for missing keys")
	}
}

func TestValidate_WriteTimeoutBelowAskBudget(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.WriteTimeoutSec = 120

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "http.write_timeout_sec") {
		t.Fatalf("expected write timeout error, got %v", err)
	}
}

func TestValidate_WriteTimeoutFollowsStageTimeouts(t *testing.T) {
	cfg := Config{
		HTTP:    HTTPConfig{Port: 8000},
		LLM:     LLMConfig{APIKey: "llm-key", TimeoutSec: 60},
		Library: LibraryConfig{APIKey: "library-key"},
	}
	cfg.ApplyDefaults()

	// 2*60 + 35 + 15 + 10
	if cfg.HTTP.WriteTimeoutSec != 180 {
		t.Errorf("write timeout = %d, want 180", cfg.HTTP.WriteTimeoutSec)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_BlankAuthKey(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.APIKeys = []string{"secret", " "}

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "auth.api_keys[1]") {
		t.Fatalf("expected blank key error, got %v", err)
	}

	cfg.Auth.APIKeys = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("no keys means auth disabled, got %v", err)
	}
}

func TestParse_ProdRejectsUnsetAuthKey(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config", "prod.yaml"))
	if err != nil {
		t.Fatalf("read prod config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "llm-key")
	t.Setenv("NLI_API_KEY", "library-key")
	t.Setenv("BIBLIO_API_KEY", "")

	_, err = Parse(data)
	if err == nil || !strings.Contains(err.Error(), "auth.api_keys") {
		t.Fatalf("expected auth key error, got %v", err)
	}

	t.Setenv("BIBLIO_API_KEY", "prod-secret")
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "prod-secret" {
		t.Errorf("api keys = %v", cfg.Auth.APIKeys)
	}
}
