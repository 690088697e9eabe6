// Package llm adapts hosted model APIs to a single text-generation interface.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/offerforge/internal/config"
)

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("model returned empty text")

// ErrNoJSON is returned when a response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// Request is one single-turn generation call.
type Request struct {
	System      string
	Prompt      string
	JSON        bool // ask the backend for a JSON object
	Temperature float32
}

// Generator produces text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// FromConfig builds the configured backend. The local provider has no remote
// model and yields a nil Generator.
func FromConfig(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch cfg.Provider {
	case config.ProviderLocal, "":
		return nil, nil
	case config.ProviderGemini:
		gen, err = NewGemini(ctx, cfg.GoogleAPIKey, cfg.Model)
	case config.ProviderOpenAI:
		gen = NewOpenAI(cfg.OpenAIAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(gen, cfg.Timeout.Std()), nil
}

type timeoutGenerator struct {
	Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call made through g.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return &timeoutGenerator{Generator: g, timeout: timeout}
}

func (t *timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Generator.Generate(ctx, req)
}

// DecodeJSON extracts the first JSON object from raw model output, tolerating
// markdown fences and surrounding prose, and decodes it into out.
func DecodeJSON(raw string, out any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}
