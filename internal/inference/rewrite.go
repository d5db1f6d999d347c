package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RewriteResult is the structured output of a tone rewrite.
type RewriteResult struct {
	IsOffensive bool
	Suggestion  string
}

// ErrMalformedOutput is wrapped by every DecodeRewrite failure.
var ErrMalformedOutput = errors.New("malformed rewrite output")

// RewriteSchema is the structured output requested from providers.
var RewriteSchema = &Schema{
	Name: "tone_rewrite",
	Properties: []Property{
		{Name: "is_offensive", Type: "boolean", Description: "true when the draft is offensive, curt or otherwise needs rewriting"},
		{Name: "suggestion", Type: "string", Description: "the rewritten draft"},
	},
}

// DecodeRewrite parses provider output into a RewriteResult. Both fields must
// be present and correctly typed; nothing is defaulted.
func DecodeRewrite(content string) (RewriteResult, error) {
	body := bytes.TrimSpace([]byte(stripCodeFence(content)))
	if len(body) == 0 {
		return RewriteResult{}, fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return RewriteResult{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	offensiveRaw, ok := raw["is_offensive"]
	if !ok {
		return RewriteResult{}, fmt.Errorf("%w: missing is_offensive", ErrMalformedOutput)
	}
	suggestionRaw, ok := raw["suggestion"]
	if !ok {
		return RewriteResult{}, fmt.Errorf("%w: missing suggestion", ErrMalformedOutput)
	}

	var res RewriteResult
	if bytes.Equal(bytes.TrimSpace(offensiveRaw), []byte("null")) {
		return RewriteResult{}, fmt.Errorf("%w: is_offensive is null", ErrMalformedOutput)
	}
	if err := json.Unmarshal(offensiveRaw, &res.IsOffensive); err != nil {
		return RewriteResult{}, fmt.Errorf("%w: is_offensive is not a boolean", ErrMalformedOutput)
	}
	if bytes.Equal(bytes.TrimSpace(suggestionRaw), []byte("null")) {
		return RewriteResult{}, fmt.Errorf("%w: suggestion is null", ErrMalformedOutput)
	}
	if err := json.Unmarshal(suggestionRaw, &res.Suggestion); err != nil {
		return RewriteResult{}, fmt.Errorf("%w: suggestion is not a string", ErrMalformedOutput)
	}
	if strings.TrimSpace(res.Suggestion) == "" {
		return RewriteResult{}, fmt.Errorf("%w: suggestion is empty", ErrMalformedOutput)
	}
	return res, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON mode output.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}
