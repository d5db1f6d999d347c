// Package entitlement asks the external usage service whether a caller may
// spend a rewrite, and normalizes every outcome into a single Verdict.
package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ReasonUnavailable is reported when the service cannot be reached or
	// answers with something unreadable.
	ReasonUnavailable = "entitlement service unavailable"
	// ReasonDenied is used when the service denies without a message.
	ReasonDenied = "access denied"

	validatePath = "/internal/validate-usage"
)

// Verdict is the normalized outcome of one entitlement check. It is produced
// fresh per request and never cached.
type Verdict struct {
	Allowed bool
	Plan    string
	// Usage holds the service's counters verbatim, e.g. {"used":1,"limit":10}.
	Usage  json.RawMessage
	Reason string
	// Status is the HTTP status the gateway should answer with when the
	// verdict denies; 200 when allowed.
	Status int
	// Err is the transport or decode failure behind an unavailable verdict.
	Err error
}

// Checker is implemented by Client and by test doubles.
type Checker interface {
	Check(ctx context.Context, token string) Verdict
}

// Client calls the entitlement service over HTTP.
type Client struct {
	baseURL          string
	client           *http.Client
	timeout          time.Duration
	maxResponseBytes int64
}

// NewClient creates a client for the service at baseURL. timeout bounds each
// call independently of the caller's deadline.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("entitlement base url is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:          baseURL,
		client:           &http.Client{},
		timeout:          timeout,
		maxResponseBytes: 64 * 1024,
	}, nil
}

type validateResponse struct {
	Allowed *bool           `json:"allowed"`
	Plan    string          `json:"plan"`
	Usage   json.RawMessage `json:"usage"`
	Error   string          `json:"error"`
}

// Check forwards token verbatim as the Authorization header and returns the
// normalized verdict. It never returns an error; failures become denying
// verdicts with Status 502.
func (c *Client) Check(ctx context.Context, token string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+validatePath, bytes.NewReader(nil))
	if err != nil {
		return unavailable(fmt.Errorf("build entitlement request: %w", err))
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return unavailable(fmt.Errorf("call entitlement service: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return unavailable(fmt.Errorf("read entitlement response: %w", err))
	}
	if int64(len(body)) > c.maxResponseBytes {
		return unavailable(fmt.Errorf("entitlement response exceeded limit (%d bytes)", c.maxResponseBytes))
	}

	return normalize(resp.StatusCode, body)
}

// normalize collapses the HTTP status and the payload into one verdict.
func normalize(status int, body []byte) Verdict {
	var payload validateResponse
	decodeErr := json.Unmarshal(body, &payload)

	if status < 200 || status > 299 {
		reason := ReasonDenied
		if decodeErr == nil && strings.TrimSpace(payload.Error) != "" {
			reason = payload.Error
		}
		return Verdict{
			Allowed: false,
			Plan:    payload.Plan,
			Usage:   payload.Usage,
			Reason:  reason,
			Status:  status,
		}
	}

	if decodeErr != nil {
		return unavailable(fmt.Errorf("decode entitlement response: %w", decodeErr))
	}
	if payload.Allowed == nil {
		return unavailable(errors.New("entitlement response missing allowed"))
	}

	if !*payload.Allowed {
		reason := ReasonDenied
		if strings.TrimSpace(payload.Error) != "" {
			reason = payload.Error
		}
		return Verdict{
			Allowed: false,
			Plan:    payload.Plan,
			Usage:   payload.Usage,
			Reason:  reason,
			Status:  http.StatusForbidden,
		}
	}

	return Verdict{
		Allowed: true,
		Plan:    payload.Plan,
		Usage:   payload.Usage,
		Status:  http.StatusOK,
	}
}

func unavailable(err error) Verdict {
	return Verdict{
		Allowed: false,
		Reason:  ReasonUnavailable,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}
