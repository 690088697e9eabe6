// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers.
const (
	ProviderLocal  = "local"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all application configuration.
// Precedence is defaults, then the YAML file named by OFFERFORGE_CONFIG, then env vars.
type Config struct {
	Port           string `yaml:"port"`
	FrontendURL    string `yaml:"frontend_url"`
	DBPath         string `yaml:"db_path"`
	AllowAnonymous bool   `yaml:"allow_anonymous"`
	DemoBaseURL    string `yaml:"demo_base_url"`

	LLM        LLMConfig        `yaml:"llm"`
	Pregen     PregenConfig     `yaml:"pregen"`
	Stream     StreamConfig     `yaml:"stream"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Log        LogConfig        `yaml:"log"`
}

// LLMConfig selects the model backend the agents call.
type LLMConfig struct {
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	GoogleAPIKey string   `yaml:"-"` // env-only
	OpenAIAPIKey string   `yaml:"-"` // env-only
	Timeout      Duration `yaml:"timeout"`
}

// PregenConfig controls background offer generation.
type PregenConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Timeout       Duration `yaml:"timeout"`
	SweepInterval Duration `yaml:"sweep_interval"` // 0 disables the sweeper
	SweepMinAge   Duration `yaml:"sweep_min_age"`
}

// StreamConfig controls the streaming chat endpoint.
type StreamConfig struct {
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	ChunkWords   int      `yaml:"chunk_words"`
	TurnTimeout  Duration `yaml:"turn_timeout"`
}

// RateLimitConfig caps chat turns per user.
type RateLimitConfig struct {
	RequestsPerWindow int      `yaml:"requests_per_window"`
	Window            Duration `yaml:"window"`
}

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration that parses from YAML strings such as "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from the optional YAML file and environment variables.
func Load() (*Config, error) {
	cfg := newDefaults()

	if path := getEnv("OFFERFORGE_CONFIG", ""); path != "" {
		if err := loadYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Port:           "8080",
		DBPath:         "./data/offerforge.db",
		AllowAnonymous: true,
		DemoBaseURL:    "/demo",
		LLM: LLMConfig{
			Provider: ProviderLocal,
			Timeout:  Duration(60 * time.Second),
		},
		Pregen: PregenConfig{
			Enabled:       true,
			Timeout:       Duration(3 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
			SweepMinAge:   Duration(10 * time.Minute),
		},
		Stream: StreamConfig{
			MaxBodyBytes: 64 << 10,
			ChunkWords:   4,
			TurnTimeout:  Duration(5 * time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			Window:            Duration(time.Minute),
		},
		Transcript: TranscriptConfig{
			Enabled:   true,
			Dir:       "./data/logs/transcripts",
			QueueSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile overlays the YAML file onto cfg. A missing file is not an error.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.AllowAnonymous = getEnvBool("ALLOW_ANONYMOUS", cfg.AllowAnonymous)
	cfg.DemoBaseURL = getEnv("DEMO_BASE_URL", cfg.DemoBaseURL)

	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.LLM.GoogleAPIKey)
	cfg.LLM.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Pregen.Enabled = getEnvBool("PREGEN_ENABLED", cfg.Pregen.Enabled)
	cfg.Pregen.Timeout = getEnvDuration("PREGEN_TIMEOUT", cfg.Pregen.Timeout)
	cfg.Pregen.SweepInterval = getEnvDuration("PREGEN_SWEEP_INTERVAL", cfg.Pregen.SweepInterval)
	cfg.Pregen.SweepMinAge = getEnvDuration("PREGEN_SWEEP_MIN_AGE", cfg.Pregen.SweepMinAge)

	cfg.Stream.MaxBodyBytes = int64(getEnvInt("STREAM_MAX_BODY_BYTES", int(cfg.Stream.MaxBodyBytes)))
	cfg.Stream.ChunkWords = getEnvInt("STREAM_CHUNK_WORDS", cfg.Stream.ChunkWords)
	cfg.Stream.TurnTimeout = getEnvDuration("STREAM_TURN_TIMEOUT", cfg.Stream.TurnTimeout)

	cfg.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", cfg.RateLimit.RequestsPerWindow)
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Transcript.Enabled = getEnvBool("TRANSCRIPT_ENABLED", cfg.Transcript.Enabled)
	cfg.Transcript.Dir = getEnv("TRANSCRIPT_DIR", cfg.Transcript.Dir)
	cfg.Transcript.QueueSize = getEnvInt("TRANSCRIPT_QUEUE_SIZE", cfg.Transcript.QueueSize)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	switch c.LLM.Provider {
	case ProviderLocal:
	case ProviderGemini:
		if c.LLM.GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not one of local, gemini, openai", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("LLM_TIMEOUT must be > 0")
	}
	if c.Pregen.Timeout <= 0 {
		return errors.New("PREGEN_TIMEOUT must be > 0")
	}
	if c.Pregen.SweepInterval < 0 {
		return errors.New("PREGEN_SWEEP_INTERVAL cannot be negative")
	}
	if c.Stream.MaxBodyBytes <= 0 {
		return errors.New("STREAM_MAX_BODY_BYTES must be > 0")
	}
	if c.Stream.ChunkWords <= 0 {
		return errors.New("STREAM_CHUNK_WORDS must be > 0")
	}
	if c.Stream.TurnTimeout <= 0 {
		return errors.New("STREAM_TURN_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return errors.New("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return errors.New("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of json, text", c.Log.Format)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback Duration) Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return Duration(d)
}
