package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/straja-ai/tonegate/internal/gate"
	"github.com/straja-ai/tonegate/internal/telemetry"
)

// rewriteRequest is the inbound body. The short names message, context and
// mode are accepted for clients of the first release.
type rewriteRequest struct {
	DraftText   string `json:"draftText"`
	ContextText string `json:"contextText"`
	PersonaID   string `json:"personaId"`

	Message string `json:"message"`
	Context string `json:"context"`
	Mode    string `json:"mode"`
}

func (b rewriteRequest) toGateRequest(requestID, authorization string) gate.Request {
	req := gate.Request{
		RequestID:   requestID,
		DraftText:   b.DraftText,
		ContextText: b.ContextText,
		PersonaID:   b.PersonaID,
		AuthToken:   authorization,
	}
	if req.DraftText == "" {
		req.DraftText = b.Message
	}
	if req.ContextText == "" {
		req.ContextText = b.Context
	}
	if req.PersonaID == "" {
		req.PersonaID = b.Mode
	}
	return req
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	ctx, span := s.telemetry.Tracer().Start(r.Context(), "tonegate.rewrite",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var body rewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status, msg := http.StatusBadRequest, "invalid JSON body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status, msg = http.StatusRequestEntityTooLarge, "request body too large"
		}
		s.observer.Observe(gate.Outcome{
			RequestID: requestID,
			Strategy:  s.gate.Strategy(),
			State:     gate.StateFailed,
			LastState: gate.StateValidating,
			Kind:      gate.KindInvalidInput,
			Status:    status,
		})
		span.SetStatus(codes.Error, msg)
		writeJSON(w, status, errorBody{Error: msg})
		return
	}

	// The Authorization header is forwarded to the entitlement service as is.
	req := body.toGateRequest(requestID, r.Header.Get("Authorization"))
	s.observer.track(requestID, req.AuthToken)
	resp, err := s.gate.Run(ctx, req)

	span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
		"tonegate.request_id": requestID,
		"tonegate.strategy":   string(s.gate.Strategy()),
		"tonegate.legacy":     body.DraftText == "" && body.Message != "",
	})...)

	if err != nil {
		gerr := gate.AsError(err)
		span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
			"tonegate.kind":    string(gerr.Kind),
			"http.status_code": gerr.Status,
		})...)
		span.SetStatus(codes.Error, string(gerr.Kind))
		writeError(w, gerr)
		return
	}

	span.SetAttributes(telemetry.SafeAttributes(map[string]interface{}{
		"http.status_code": http.StatusOK,
		"tonegate.plan":    resp.Meta.Plan,
	})...)
	writeJSON(w, http.StatusOK, resp)
}
