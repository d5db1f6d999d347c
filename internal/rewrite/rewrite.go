// Package rewrite turns a draft into a persona-toned suggestion using an
// inference provider with a bounded token budget and structured output.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/straja-ai/tonegate/internal/inference"
	"github.com/straja-ai/tonegate/internal/persona"
	"github.com/straja-ai/tonegate/internal/provider"
)

// Kind classifies a rewrite failure.
type Kind string

const (
	KindTimeout  Kind = "timeout"
	KindUpstream Kind = "upstream"
	KindParse    Kind = "parse"
)

// Error is returned by Rewrite on every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rewrite %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Defaults match the budget the gateway has always used.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 250
	DefaultTemperature = 0.3
	DefaultTimeout     = 20 * time.Second
)

// Options configures a Client.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Rewriter is implemented by Client and by test doubles.
type Rewriter interface {
	Rewrite(ctx context.Context, p persona.Persona, draft, contextText string) (inference.RewriteResult, error)
}

// Client is the inference side of the gateway.
type Client struct {
	provider provider.Provider
	opts     Options
}

// New wraps a provider. Zero option fields take the package defaults.
func New(p provider.Provider, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{provider: p, opts: opts}
}

// Rewrite asks the provider to rewrite draft in the persona's tone. The
// context text is only ever shown to the model as read-only background.
func (c *Client) Rewrite(ctx context.Context, p persona.Persona, draft, contextText string) (inference.RewriteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req := &inference.Request{
		Model:       c.opts.Model,
		Messages:    BuildMessages(p, draft, contextText),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Schema:      inference.RewriteSchema,
	}

	resp, err := c.provider.ChatCompletion(ctx, req)
	if err != nil {
		if isTimeout(ctx, err) {
			return inference.RewriteResult{}, &Error{Kind: KindTimeout, Err: err}
		}
		return inference.RewriteResult{}, &Error{Kind: KindUpstream, Err: err}
	}
	if resp == nil {
		return inference.RewriteResult{}, &Error{Kind: KindUpstream, Err: errors.New("provider returned no response")}
	}

	res, err := inference.DecodeRewrite(resp.Message.Content)
	if err != nil {
		return inference.RewriteResult{}, &Error{Kind: KindParse, Err: err}
	}
	return res, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

const outputDirective = `Respond only with a JSON object with exactly two fields: "is_offensive" (boolean) and "suggestion" (string).`

const userTemplate = `[[[ INPUT ]]]

1. CONTEXT (read-only; what the other person said. Never copy it into the suggestion):
"""
%s
"""

2. DRAFT TO REWRITE (what I want to reply):
"""
%s
"""

TASK: Rewrite only MY DRAFT, keeping my decision (yes or no) intact, in your persona's tone. The context must never appear in the suggestion.`

// BuildMessages renders the system and user messages for one rewrite.
func BuildMessages(p persona.Persona, draft, contextText string) []inference.Message {
	if strings.TrimSpace(contextText) == "" {
		contextText = "No context."
	}
	return []inference.Message{
		{Role: "system", Content: strings.TrimSpace(p.SystemInstructions) + "\n\n" + outputDirective},
		{Role: "user", Content: fmt.Sprintf(userTemplate, contextText, draft)},
	}
}
