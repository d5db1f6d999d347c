package provider

import (
	"context"
	"fmt"

	"github.com/straja-ai/tonegate/internal/inference"
)

// Provider is the interface for all upstream text-generation backends.
type Provider interface {
	ChatCompletion(ctx context.Context, req *inference.Request) (*inference.Response, error)
}

// StatusError is returned when a provider answers with a non-success status.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error status %d: %s", e.Provider, e.StatusCode, e.Message)
}
