package provider

import (
	"context"
	"sync"
	"time"

	"github.com/straja-ai/tonegate/internal/inference"
)

// FakeProvider returns a canned completion. It counts calls and can simulate
// latency, honoring context cancellation while it waits.
type FakeProvider struct {
	ResponseText string
	Error        error
	Delay        time.Duration

	mu       sync.Mutex
	calls    int
	requests []*inference.Request
}

func (f *FakeProvider) ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if f.Error != nil {
		return nil, f.Error
	}

	return &inference.Response{
		Message: inference.Message{
			Role:    "assistant",
			Content: f.ResponseText,
		},
		Usage: inference.Usage{
			PromptTokens:     2,
			CompletionTokens: 3,
			TotalTokens:      5,
		},
	}, nil
}

// Calls returns how many completions were requested.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastRequest returns the most recent request, or nil.
func (f *FakeProvider) LastRequest() *inference.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func NewFake(response string) *FakeProvider {
	return &FakeProvider{ResponseText: response}
}
