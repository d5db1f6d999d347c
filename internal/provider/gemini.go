package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/straja-ai/tonegate/internal/inference"
)

// geminiProvider implements Provider on top of the Google GenAI SDK.
type geminiProvider struct {
	client *genai.Client
}

// NewGemini creates a Gemini provider. baseURL is optional and mostly useful
// for pointing the SDK at a proxy or a test server.
func NewGemini(ctx context.Context, apiKey, baseURL string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiProvider{client: client}, nil
}

func (p *geminiProvider) ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = geminiSchema(req.Schema)
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response had no candidates")
	}

	resp := &inference.Response{
		Message: inference.Message{
			Role:    "assistant",
			Content: result.Text(),
		},
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = inference.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func geminiSchema(s *inference.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Properties)),
	}
	for _, p := range s.Properties {
		out.Properties[p.Name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
		}
		out.Required = append(out.Required, p.Name)
		out.PropertyOrdering = append(out.PropertyOrdering, p.Name)
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "boolean":
		return genai.TypeBoolean
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	default:
		return genai.TypeString
	}
}
