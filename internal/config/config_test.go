package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"OFFERFORGE_CONFIG", "PORT", "FRONTEND_URL", "DB_PATH", "ALLOW_ANONYMOUS", "DEMO_BASE_URL",
	"LLM_PROVIDER", "LLM_MODEL", "GOOGLE_API_KEY", "OPENAI_API_KEY", "LLM_TIMEOUT",
	"PREGEN_ENABLED", "PREGEN_TIMEOUT", "PREGEN_SWEEP_INTERVAL", "PREGEN_SWEEP_MIN_AGE",
	"STREAM_MAX_BODY_BYTES", "STREAM_CHUNK_WORDS", "STREAM_TURN_TIMEOUT",
	"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW",
	"TRANSCRIPT_ENABLED", "TRANSCRIPT_DIR", "TRANSCRIPT_QUEUE_SIZE",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		if prev, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LLM.Provider != ProviderLocal {
		t.Errorf("Provider = %q, want local", cfg.LLM.Provider)
	}
	if cfg.Pregen.Timeout.Std() != 3*time.Minute {
		t.Errorf("Pregen.Timeout = %v, want 3m", cfg.Pregen.Timeout.Std())
	}
	if !cfg.AllowAnonymous {
		t.Error("anonymous access should default on")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	// Given: a YAML file and one overriding env var
	path := filepath.Join(t.TempDir(), "offerforge.yaml")
	yamlDoc := `
port: "9090"
db_path: /tmp/from-yaml.db
pregen:
  timeout: 45s
  sweep_interval: 0s
log:
  format: text
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OFFERFORGE_CONFIG", path)
	t.Setenv("PORT", "7070")

	// When
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Then: env wins over YAML, YAML wins over defaults
	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want env value 7070", cfg.Port)
	}
	if cfg.DBPath != "/tmp/from-yaml.db" {
		t.Errorf("DBPath = %q, want YAML value", cfg.DBPath)
	}
	if cfg.Pregen.Timeout.Std() != 45*time.Second {
		t.Errorf("Pregen.Timeout = %v, want 45s", cfg.Pregen.Timeout.Std())
	}
	if cfg.Pregen.SweepInterval != 0 {
		t.Errorf("SweepInterval = %v, want disabled", cfg.Pregen.SweepInterval.Std())
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

func TestLoadMissingYAMLUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OFFERFORGE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
}

func TestValidateProviderKeys(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		google   string
		openai   string
		wantErr  string
	}{
		{name: "local", provider: ProviderLocal},
		{name: "gemini without key", provider: ProviderGemini, wantErr: "GOOGLE_API_KEY"},
		{name: "gemini with key", provider: ProviderGemini, google: "g-key"},
		{name: "openai without key", provider: ProviderOpenAI, wantErr: "OPENAI_API_KEY"},
		{name: "openai with key", provider: ProviderOpenAI, openai: "sk-test"},
		{name: "unknown", provider: "claude", wantErr: "LLM_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newDefaults()
			cfg.LLM.Provider = tt.provider
			cfg.LLM.GoogleAPIKey = tt.google
			cfg.LLM.OpenAIAPIKey = tt.openai

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAM_CHUNK_WORDS", "many")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("PREGEN_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Stream.ChunkWords != 4 {
		t.Errorf("ChunkWords = %d, want default 4", cfg.Stream.ChunkWords)
	}
	if cfg.LLM.Timeout.Std() != 60*time.Second {
		t.Errorf("LLM.Timeout = %v, want default", cfg.LLM.Timeout.Std())
	}
	if !cfg.Pregen.Enabled {
		t.Error("unparseable bool should keep the default")
	}
}
