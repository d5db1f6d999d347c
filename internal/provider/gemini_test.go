package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straja-ai/tonegate/internal/inference"
)

func TestGeminiChatCompletion(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"is_offensive\":true,\"suggestion\":\"X\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
		}`))
	}))
	defer srv.Close()

	p, err := NewGemini(context.Background(), "test-key", srv.URL)
	if err != nil {
		t.Fatalf("new gemini: %v", err)
	}

	resp, err := p.ChatCompletion(context.Background(), &inference.Request{
		Model:       "gemini-2.0-flash",
		Messages:    []inference.Message{{Role: "system", Content: "persona"}, {Role: "user", Content: "draft"}},
		MaxTokens:   250,
		Temperature: 0.3,
		Schema:      inference.RewriteSchema,
	})
	if err != nil {
		t.Fatalf("chat completion: %v", err)
	}

	res, err := inference.DecodeRewrite(resp.Message.Content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.IsOffensive || res.Suggestion != "X" {
		t.Fatalf("unexpected result %+v", res)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage mapping, got %+v", resp.Usage)
	}

	genCfg, ok := got["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("expected generationConfig in request, got %v", got)
	}
	if genCfg["responseMimeType"] != "application/json" {
		t.Fatalf("expected json mime type, got %v", genCfg["responseMimeType"])
	}
	if genCfg["maxOutputTokens"] != float64(250) {
		t.Fatalf("expected maxOutputTokens=250, got %v", genCfg["maxOutputTokens"])
	}
	if _, ok := got["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction to be sent")
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error without api key")
	}
}
