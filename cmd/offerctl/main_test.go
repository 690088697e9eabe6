package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/offerforge/internal/pipeline"
)

const scenario = `{
  "chosenRecommendation": {"niche": "roofing", "bottleneck": "lead response time", "solution": "instant replies"},
  "profile": {"time_availability": "5_to_15", "revenue_goal": "1k_3k", "blockers": ["no_offer"]},
  "answers": {"delivery_model": "subscription", "pricing_direction": "mid", "location_city": "Leeds"}
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "local")
	t.Setenv("OFFERFORGE_CONFIG", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o600))

	out, err := run(t, "", "generate", "--input", path)
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	require.NotNil(t, res.Result)
	assert.GreaterOrEqual(t, res.Result.PricingMonthly, 0.0)
}

func TestGenerate_InvalidInput(t *testing.T) {
	_, err := run(t, `{"chosenRecommendation":{},"profile":{},"answers":{}}`, "generate")
	require.Error(t, err)
	assert.True(t, pipeline.IsInvalidInput(err))
}

func TestAnalyze_Stdin(t *testing.T) {
	out, err := run(t, `{"time_availability":"5_to_15","revenue_goal":"1k_3k","blockers":["no_offer"]}`, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, `"recommendations"`)
}

func TestMigrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "offerforge.db")
	out, err := run(t, "", "migrate", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date")
	_, statErr := os.Stat(db)
	assert.NoError(t, statErr)
}
