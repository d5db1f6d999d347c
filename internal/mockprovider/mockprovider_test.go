package mockprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/tonegate/internal/entitlement"
	"github.com/straja-ai/tonegate/internal/inference"
	"github.com/straja-ai/tonegate/internal/persona"
	"github.com/straja-ai/tonegate/internal/provider"
	"github.com/straja-ai/tonegate/internal/rewrite"
)

func startMock(t *testing.T, opts Options) *Upstreams {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Delay == 0 {
		opts.Delay = -1
	}
	u, err := Start(opts)
	if err != nil {
		t.Skipf("start mock upstreams: %v", err)
	}
	t.Cleanup(func() { _ = u.Shutdown(context.Background()) })
	return u
}

func TestMockChatCompletions(t *testing.T) {
	u := startMock(t, Options{})

	payload := []byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`)
	resp, err := http.Post(u.URL+"/v1/chat/completions", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Choices, 1)
	assert.Equal(t, "gpt-4o-mini", body.Model)

	res, err := inference.DecodeRewrite(body.Choices[0].Message.Content)
	require.NoError(t, err)
	assert.Equal(t, MockSuggestion, res.Suggestion)
}

func TestMockValidateUsage(t *testing.T) {
	u := startMock(t, Options{Limit: 2})
	client, err := entitlement.NewClient(u.URL, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	v := client.Check(ctx, "Bearer plan:professional")
	require.True(t, v.Allowed)
	assert.Equal(t, "PROFESSIONAL", v.Plan)
	assert.JSONEq(t, `{"used":1,"limit":2}`, string(v.Usage))

	v = client.Check(ctx, "Bearer someone")
	require.True(t, v.Allowed)
	assert.Equal(t, "TRIAL", v.Plan)

	v = client.Check(ctx, "Bearer someone")
	assert.False(t, v.Allowed)
	assert.Equal(t, http.StatusTooManyRequests, v.Status)
	assert.Equal(t, int64(2), u.Used())

	v = client.Check(ctx, "Bearer denied-user")
	assert.Equal(t, http.StatusForbidden, v.Status)
	assert.Equal(t, "Subscription inactive", v.Reason)

	v = client.Check(ctx, "")
	assert.Equal(t, http.StatusUnauthorized, v.Status)
	assert.Equal(t, "Token not provided", v.Reason)
}

func TestMockDrivesRealClients(t *testing.T) {
	u := startMock(t, Options{Malformed: true})

	p := provider.NewOpenAI(provider.OpenAIOptions{BaseURL: u.URL + "/v1", APIKey: "mock"})
	_, err := rewrite.New(p, rewrite.Options{}).Rewrite(context.Background(), persona.Builtin().Resolve(""), "no", "")

	var rerr *rewrite.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rewrite.KindParse, rerr.Kind)
}

func TestMockNotFound(t *testing.T) {
	u := startMock(t, Options{})

	resp, err := http.Get(u.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
