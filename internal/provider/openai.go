package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/straja-ai/tonegate/internal/inference"
)

// Response format modes for OpenAI-compatible backends.
const (
	FormatJSONSchema = "json_schema"
	FormatJSONObject = "json_object"
)

// openAIProvider implements Provider for the OpenAI Chat Completions API.
type openAIProvider struct {
	baseURL          string
	apiKey           string
	format           string
	client           *http.Client
	maxResponseBytes int64
}

// OpenAIOptions configures NewOpenAI.
type OpenAIOptions struct {
	BaseURL string
	APIKey  string
	// Format is FormatJSONSchema (default) or FormatJSONObject for backends
	// that only support plain JSON mode.
	Format           string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(opts OpenAIOptions) Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 4 * 1024 * 1024
	}
	if opts.Format == "" {
		opts.Format = FormatJSONSchema
	}

	return &openAIProvider{
		baseURL:          opts.BaseURL,
		apiKey:           opts.APIKey,
		format:           opts.Format,
		maxResponseBytes: opts.MaxResponseBytes,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMessage   `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIChatUsage    `json:"usage"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *openAIProvider) ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	oaiReq := openAIChatRequest{
		Model:     req.Model,
		Messages:  make([]openAIChatMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		oaiReq.Temperature = &t
	}
	if req.Schema != nil {
		oaiReq.ResponseFormat = p.responseFormat(req.Schema)
	}

	for _, m := range req.Messages {
		oaiReq.Messages = append(oaiReq.Messages, openAIChatMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/chat/completions", p.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, p.maxResponseBytes+1)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if int64(len(respBody)) > p.maxResponseBytes {
		return nil, fmt.Errorf("openai response exceeded limit (%d bytes)", p.maxResponseBytes)
	}

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Provider: "openai", StatusCode: resp.StatusCode}
		var errBody openAIErrorResponse
		if err := json.Unmarshal(respBody, &errBody); err == nil {
			statusErr.Message = errBody.Error.Message
		}
		return nil, statusErr
	}

	var oaiResp openAIChatResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}

	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai response had no choices")
	}

	first := oaiResp.Choices[0]

	return &inference.Response{
		Message: inference.Message{
			Role:    first.Message.Role,
			Content: first.Message.Content,
		},
		Usage: inference.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func (p *openAIProvider) responseFormat(s *inference.Schema) *openAIResponseFormat {
	if p.format == FormatJSONObject {
		return &openAIResponseFormat{Type: FormatJSONObject}
	}
	return &openAIResponseFormat{
		Type: FormatJSONSchema,
		JSONSchema: &openAIJSONSchema{
			Name:   s.Name,
			Strict: true,
			Schema: jsonSchema(s),
		},
	}
}

// jsonSchema renders a Schema as a strict JSON schema object.
func jsonSchema(s *inference.Schema) map[string]any {
	props := make(map[string]any, len(s.Properties))
	required := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
