package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/activation"
	"github.com/straja-ai/tonegate/internal/config"
	"github.com/straja-ai/tonegate/internal/inference"
	"github.com/straja-ai/tonegate/internal/mockprovider"
	"github.com/straja-ai/tonegate/internal/persona"
)

func startUpstreams(t *testing.T) *mockprovider.Upstreams {
	t.Helper()
	u, err := mockprovider.Start(mockprovider.Options{Addr: "127.0.0.1:0", Delay: -1})
	if err != nil {
		t.Skipf("start mock upstreams: %v", err)
	}
	t.Cleanup(func() { _ = u.Shutdown(context.Background()) })
	return u
}

func mockConfig(u *mockprovider.Upstreams, strategy, auditPath string) *config.Config {
	cfg := config.Default()
	cfg.Gate.Strategy = strategy
	cfg.Entitlement.BaseURL = u.URL
	cfg.Entitlement.AllowPrivateNetworks = true
	cfg.Providers = map[string]config.ProviderConfig{
		"mock": {Type: "openai", BaseURL: u.URL + "/v1", APIKey: "mock", AllowPrivateNetworks: true},
	}
	cfg.Inference.Provider = "mock"
	cfg.Activation.Sinks = []config.SinkConfig{{Type: "file_jsonl", Path: auditPath}}
	return cfg
}

func postRewrite(t *testing.T, url, token, personaID string) (*http.Response, map[string]any) {
	t.Helper()
	body := `{"draftText":"I can't come, stop asking","personaId":"` + personaID + `"}`
	req, err := http.NewRequest(http.MethodPost, url+"/v1/rewrite", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestAppEndToEnd(t *testing.T) {
	for _, strategy := range []string{"concurrent", "sequential"} {
		t.Run(strategy, func(t *testing.T) {
			u := startUpstreams(t)
			auditPath := filepath.Join(t.TempDir(), "decisions.jsonl")
			cfg := mockConfig(u, strategy, auditPath)
			require.NoError(t, config.Validate(cfg))

			a, err := buildApp(context.Background(), cfg, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, strategy, string(a.gate.Strategy()))

			ts := httptest.NewServer(a.server.Handler())
			defer ts.Close()

			resp, out := postRewrite(t, ts.URL, "Bearer plan:professional", "sales")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, mockprovider.MockSuggestion, out["suggestion"])
			assert.Equal(t, "PROFESSIONAL", out["meta"].(map[string]any)["plan"])

			resp, out = postRewrite(t, ts.URL, "Bearer trial-user", "sales")
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, true, out["isUpgradeRequired"])

			resp, out = postRewrite(t, ts.URL, "Bearer denied-user", "polite")
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "Subscription inactive", out["error"])

			a.close(context.Background())

			f, err := os.Open(auditPath)
			require.NoError(t, err)
			defer f.Close()
			var decisions []string
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var ev activation.Event
				require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
				assert.Equal(t, strategy, ev.Strategy)
				decisions = append(decisions, string(ev.Decision))
			}
			assert.ElementsMatch(t, []string{"allow", "plan_gated", "denied"}, decisions)
		})
	}
}

func TestBenchAgainstApp(t *testing.T) {
	u := startUpstreams(t)
	a, err := buildApp(context.Background(), mockConfig(u, "concurrent", filepath.Join(t.TempDir(), "d.jsonl")), zap.NewNop())
	require.NoError(t, err)
	defer a.close(context.Background())
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	res, err := runBench(context.Background(), benchOptions{
		URL:         ts.URL,
		N:           10,
		Concurrency: 3,
		Token:       "Bearer plan:trial",
		Draft:       "where is the report",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.N)
	assert.Equal(t, map[int]int{http.StatusOK: 10}, res.Statuses)
	assert.LessOrEqual(t, res.P50, res.P95)
	assert.Contains(t, res.String(), "statuses=[200=10]")
}

func TestBenchTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := runBench(context.Background(), benchOptions{URL: url, N: 2})
	require.Error(t, err)
}

func TestBuildAppReleasesWorkersOnError(t *testing.T) {
	ignore := goleak.IgnoreCurrent()

	cfg := config.Default()
	cfg.Entitlement.BaseURL = "https://auth.example.com"
	cfg.Activation.Workers = 4
	cfg.Activation.Sinks = []config.SinkConfig{{Type: "file_jsonl", Path: filepath.Join(t.TempDir(), "d.jsonl")}}
	// Skips Validate so the failure surfaces after the emitter is running.
	cfg.Gate.Strategy = "eventually"

	_, err := buildApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)

	goleak.VerifyNone(t, ignore,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestBuildPersonas(t *testing.T) {
	reg, err := buildPersonas(config.PersonasConfig{})
	require.NoError(t, err)
	assert.Equal(t, persona.DefaultID, reg.DefaultID())

	reg, err = buildPersonas(config.PersonasConfig{Default: "clarity"})
	require.NoError(t, err)
	assert.Equal(t, "clarity", reg.DefaultID())
	assert.Equal(t, "clarity", reg.Resolve("unknown").ID)

	_, err = buildPersonas(config.PersonasConfig{Default: "missing"})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default: calm
personas:
  - id: calm
    instructions: Rewrite the message calmly.
  - id: exec
    instructions: Rewrite the message for an executive audience.
    minimum_plan: ESSENTIAL
`), 0o644))
	reg, err = buildPersonas(config.PersonasConfig{File: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"calm", "exec"}, reg.IDs())
	p, ok := reg.Lookup("exec")
	require.True(t, ok)
	assert.Equal(t, persona.PlanEssential, p.MinimumPlan)
}

func TestBuildProvider(t *testing.T) {
	p, err := buildProvider(context.Background(), config.ProviderConfig{Type: "fake"}, 0)
	require.NoError(t, err)
	resp, err := p.ChatCompletion(context.Background(), &inference.Request{Model: "m"})
	require.NoError(t, err)
	res, err := inference.DecodeRewrite(resp.Message.Content)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Suggestion)

	p, err = buildProvider(context.Background(), config.ProviderConfig{Type: "OpenAI", APIKey: "k"}, 0)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = buildProvider(context.Background(), config.ProviderConfig{Type: "anthropic"}, 0)
	require.Error(t, err)
}

func TestBuildSinks(t *testing.T) {
	dir := t.TempDir()
	sinks, err := buildSinks([]config.SinkConfig{
		{Type: "stdout"},
		{Type: "file_jsonl", Path: filepath.Join(dir, "a.jsonl")},
		{Type: "webhook", URL: "http://127.0.0.1:1/hook", TimeoutMs: 100},
	}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sinks, 3)
	assert.Equal(t, "stdout", sinks[0].Name())
	for _, s := range sinks {
		require.NoError(t, s.Close(context.Background()))
	}

	_, err = buildSinks([]config.SinkConfig{{Type: "stdout"}, {Type: "kafka"}}, zap.NewNop())
	require.ErrorContains(t, err, "activation sink 1")
}

func TestLoadConfigOverride(t *testing.T) {
	t.Setenv("AUTH_API_URL", "")
	path := filepath.Join(t.TempDir(), "tonegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entitlement:
  base_url: https://auth.example.com
providers:
  stub:
    type: fake
`), 0o644))

	cfg, err := loadConfig(path, func(c *config.Config) { c.Gate.Strategy = "sequential" })
	require.NoError(t, err)
	assert.Equal(t, "sequential", cfg.Gate.Strategy)
	assert.Equal(t, "stub", cfg.Inference.Provider)

	_, err = loadConfig(path, func(c *config.Config) { c.Gate.Strategy = "eventually" })
	require.ErrorContains(t, err, "invalid config")
}

func TestDecisionReceiver(t *testing.T) {
	ts := httptest.NewServer(decisionReceiver(zap.NewNop()))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/activation", "application/json",
		strings.NewReader(`{"version":"1","request_id":"r1","decision":"allow","status":200}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
