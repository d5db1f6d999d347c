// Package mockprovider runs local stand-ins for both collaborators of the
// gateway: the entitlement service and an OpenAI-compatible chat endpoint.
package mockprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPort    = 18080
	defaultDelayMS = 50
	defaultLimit   = 100
	defaultPlan    = "TRIAL"

	// MockSuggestion is the suggestion returned by the chat endpoint.
	MockSuggestion = "Thanks for thinking of me. I can't make it this time, but let's catch up soon."
)

// Options configures the mock upstreams. Zero values take defaults, some of
// which can be set through MOCK_PROVIDER_PORT and MOCK_DELAY_MS.
type Options struct {
	Addr string
	// Delay is applied to chat completions only.
	Delay time.Duration
	// Plan reported for tokens that do not name one.
	Plan string
	// Limit is the number of allowed checks before the mock answers 429.
	Limit int64
	// Malformed makes the chat endpoint omit "suggestion".
	Malformed bool
	Logger    *zap.Logger
}

// Upstreams is a running mock server.
type Upstreams struct {
	URL string
	srv *http.Server

	used      atomic.Int64
	limit     int64
	plan      string
	delay     time.Duration
	malformed bool
	logger    *zap.Logger
}

// Start launches the mock server. If opts.Addr is empty it listens on
// 127.0.0.1:MOCK_PROVIDER_PORT (default 18080).
func Start(opts Options) (*Upstreams, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		port := strings.TrimSpace(os.Getenv("MOCK_PROVIDER_PORT"))
		if port == "" {
			port = strconv.Itoa(defaultPort)
		}
		addr = "127.0.0.1:" + port
	}

	delay := opts.Delay
	if delay == 0 {
		delay = defaultDelayMS * time.Millisecond
		if val := strings.TrimSpace(os.Getenv("MOCK_DELAY_MS")); val != "" {
			if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
				delay = time.Duration(parsed) * time.Millisecond
			}
		}
	}
	if delay < 0 {
		delay = 0
	}

	u := &Upstreams{
		limit:     opts.Limit,
		plan:      opts.Plan,
		delay:     delay,
		malformed: opts.Malformed,
		logger:    opts.Logger,
	}
	if u.limit <= 0 {
		u.limit = defaultLimit
	}
	if u.plan == "" {
		u.plan = defaultPlan
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	u.srv = &http.Server{Handler: u.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := u.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			u.logger.Error("mock upstream server error", zap.Error(err))
		}
	}()

	u.URL = "http://" + ln.Addr().String()
	u.logger.Info("mock upstreams listening",
		zap.String("url", u.URL),
		zap.Duration("delay", delay),
		zap.String("plan", u.plan),
	)
	return u, nil
}

// Shutdown stops the server.
func (u *Upstreams) Shutdown(ctx context.Context) error {
	return u.srv.Shutdown(ctx)
}

// Used returns how many allowed checks have been served.
func (u *Upstreams) Used() int64 { return u.used.Load() }

func (u *Upstreams) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u.logger.Debug("mock upstream request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/internal/validate-usage", u.handleValidateUsage)
	r.Post("/v1/chat/completions", u.handleChatCompletion)
	r.Post("/chat/completions", u.handleChatCompletion)
	r.Get("/v1/models", writeModels)
	r.NotFound(writeNotFoundJSON)
	return r
}

// handleValidateUsage imitates the entitlement service. The bearer token
// steers the answer: "denied" and "quota" force those outcomes and
// "plan:<NAME>" reports that plan.
func (u *Upstreams) handleValidateUsage(w http.ResponseWriter, r *http.Request) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer"))
	switch {
	case token == "":
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Token not provided"})
		return
	case strings.Contains(token, "denied"):
		writeJSON(w, http.StatusForbidden, map[string]any{"allowed": false, "error": "Subscription inactive"})
		return
	case strings.Contains(token, "quota"):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"allowed": false, "error": "Daily limit reached"})
		return
	}

	used := u.used.Add(1)
	if used > u.limit {
		u.used.Add(-1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"allowed": false, "error": "Daily limit reached"})
		return
	}

	plan := u.plan
	if rest, ok := strings.CutPrefix(token, "plan:"); ok && rest != "" {
		plan = strings.ToUpper(rest)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": true,
		"plan":    plan,
		"usage":   map[string]int64{"used": used, "limit": u.limit},
	})
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (u *Upstreams) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "invalid request", "type": "invalid_request_error"},
		})
		return
	}

	if u.delay > 0 {
		timer := time.NewTimer(u.delay)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			return
		}
	}

	content := map[string]any{"is_offensive": false, "suggestion": MockSuggestion}
	if u.malformed {
		delete(content, "suggestion")
	}
	encoded, _ := json.Marshal(content)

	model := req.Model
	if model == "" {
		model = "mock-llm"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": string(encoded),
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     5,
			"completion_tokens": 5,
			"total_tokens":      10,
		},
	})
}

func writeModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-llm", "object": "model", "owned_by": "mock"},
		},
	})
}

func writeNotFoundJSON(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{"message": "Not found", "type": "invalid_request_error"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
