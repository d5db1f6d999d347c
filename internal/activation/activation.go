// Package activation records one audit event per finished gateway request and
// delivers it asynchronously to configured sinks. Events never carry draft or
// context text, suggestions, credentials or usage counters.
package activation

import (
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/tonegate/internal/gate"
)

// EventVersion is bumped when the event shape changes incompatibly.
const EventVersion = "1"

// Decision is the outcome of a request from the gateway's perspective.
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionDenied        Decision = "denied"
	DecisionPlanGated     Decision = "plan_gated"
	DecisionInvalid       Decision = "invalid"
	DecisionErrorUpstream Decision = "error_upstream"
	DecisionErrorContract Decision = "error_contract"
	DecisionTimeout       Decision = "timeout"
)

// TimingMs holds per-stage latencies in milliseconds.
type TimingMs struct {
	Entitlement float64 `json:"entitlement"`
	Inference   float64 `json:"inference"`
	Total       float64 `json:"total"`
}

// Event is the canonical audit payload.
type Event struct {
	Version         string    `json:"version"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id"`
	Persona         string    `json:"persona,omitempty"`
	Strategy        string    `json:"strategy"`
	Decision        Decision  `json:"decision"`
	Kind            string    `json:"kind,omitempty"`
	Status          int       `json:"status"`
	Plan            string    `json:"plan,omitempty"`
	LastState       string    `json:"last_state"`
	InferenceCalled bool      `json:"inference_called"`
	TimingMs        TimingMs  `json:"timing_ms"`
}

// BuildEvent converts a gate outcome into an audit event.
func BuildEvent(o gate.Outcome) *Event {
	return &Event{
		Version:         EventVersion,
		Timestamp:       time.Now().UTC(),
		RequestID:       ensureRequestID(o.RequestID),
		Persona:         o.Persona,
		Strategy:        string(o.Strategy),
		Decision:        DecisionFor(o),
		Kind:            string(o.Kind),
		Status:          o.Status,
		Plan:            o.Plan,
		LastState:       string(o.LastState),
		InferenceCalled: o.InferenceCalled,
		TimingMs: TimingMs{
			Entitlement: durationMillis(o.Timings.Entitlement),
			Inference:   durationMillis(o.Timings.Inference),
			Total:       durationMillis(o.Timings.Total),
		},
	}
}

// DecisionFor classifies an outcome.
func DecisionFor(o gate.Outcome) Decision {
	if o.State == gate.StateSucceeded {
		return DecisionAllow
	}
	switch o.Kind {
	case gate.KindInvalidInput, gate.KindMissingCredential:
		return DecisionInvalid
	case gate.KindUnauthorized, gate.KindQuotaExceeded:
		return DecisionDenied
	case gate.KindPlanUpgradeRequired:
		return DecisionPlanGated
	case gate.KindTimeout:
		return DecisionTimeout
	case gate.KindBackendContractViolation, gate.KindInternalMisconfiguration:
		return DecisionErrorContract
	default:
		return DecisionErrorUpstream
	}
}

func ensureRequestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
