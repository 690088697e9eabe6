package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ashureev/offerforge/internal/config"
)

type fakeModels struct {
	text      string
	err       error
	lastModel string
	lastCfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

type fakeCompletions struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: f.content},
		}},
	}, nil
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Segment string `json:"segment"`
	}

	require.NoError(t, DecodeJSON("```json\n{\"segment\": \"roofers\"}\n```", &out))
	assert.Equal(t, "roofers", out.Segment)

	assert.ErrorIs(t, DecodeJSON("no object here", &out), ErrNoJSON)
	assert.Error(t, DecodeJSON("{not json}", &out))
}

func TestGeminiGenerate(t *testing.T) {
	models := &fakeModels{text: `{"ok":true}`}
	g := newGeminiWithService(models, "")

	got, err := g.Generate(context.Background(), Request{System: "sys", Prompt: "hi", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
	assert.Equal(t, defaultGeminiModel, models.lastModel)
	assert.Equal(t, "application/json", models.lastCfg.ResponseMIMEType)
	assert.NotNil(t, models.lastCfg.SystemInstruction)
	assert.Equal(t, "gemini/"+defaultGeminiModel, g.Name())
}

func TestGeminiEmptyText(t *testing.T) {
	g := newGeminiWithService(&fakeModels{}, "m")
	_, err := g.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIGenerate(t *testing.T) {
	svc := &fakeCompletions{content: "hello"}
	o := newOpenAIWithService(svc, "")

	got, err := o.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 1, svc.calls)
	assert.Equal(t, "openai/"+defaultOpenAIModel, o.Name())
}

func TestOpenAIErrorIsWrapped(t *testing.T) {
	boom := errors.New("rate limited")
	o := newOpenAIWithService(&fakeCompletions{err: boom}, "m")
	_, err := o.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, boom)

	_, err = newOpenAIWithService(&fakeCompletions{}, "m").Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

type slowGenerator struct{}

func (slowGenerator) Name() string { return "slow" }
func (slowGenerator) Generate(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	g := WithTimeout(slowGenerator{}, 10*time.Millisecond)
	_, err := g.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "slow", g.Name())
}

func TestFromConfigLocalHasNoGenerator(t *testing.T) {
	gen, err := FromConfig(context.Background(), config.LLMConfig{Provider: config.ProviderLocal})
	require.NoError(t, err)
	assert.Nil(t, gen)

	_, err = FromConfig(context.Background(), config.LLMConfig{Provider: "nope"})
	assert.Error(t, err)
}
