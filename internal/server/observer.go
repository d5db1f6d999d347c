package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/activation"
	"github.com/straja-ai/tonegate/internal/gate"
	"github.com/straja-ai/tonegate/internal/telemetry"
)

// Observer fans a finished request out to the audit emitter, metrics and the
// request log. A nil Observer does nothing.
type Observer struct {
	emitter   *activation.Emitter
	telemetry *telemetry.Provider
	logger    *zap.Logger
	requests  *requestStore
}

// NewObserver builds an Observer. Every argument may be nil.
func NewObserver(emitter *activation.Emitter, tel *telemetry.Provider, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		emitter:   emitter,
		telemetry: tel,
		logger:    logger,
		requests:  newRequestStore(defaultRequestTTL, defaultMaxRequests),
	}
}

// track marks requestID as in flight for the given credential.
func (o *Observer) track(requestID, credential string) {
	if o == nil {
		return
	}
	o.requests.Start(requestID, credential)
}

func (o *Observer) lookup(requestID, credential string) (requestEntry, bool) {
	if o == nil {
		return requestEntry{}, false
	}
	return o.requests.Get(requestID, credential)
}

// Observe records one outcome. It never blocks on sink delivery.
func (o *Observer) Observe(out gate.Outcome) {
	if o == nil {
		return
	}
	ev := activation.BuildEvent(out)
	o.emitter.Emit(ev)
	o.requests.Complete(ev.RequestID, ev)
	o.telemetry.RecordRequest(context.Background(), telemetry.RequestMetrics{
		Decision:        string(ev.Decision),
		Strategy:        ev.Strategy,
		Persona:         ev.Persona,
		Status:          ev.Status,
		Total:           out.Timings.Total,
		Entitlement:     out.Timings.Entitlement,
		Inference:       out.Timings.Inference,
		InferenceCalled: out.InferenceCalled,
	})

	fields := []zap.Field{
		zap.String("request_id", ev.RequestID),
		zap.String("decision", string(ev.Decision)),
		zap.Int("status", ev.Status),
		zap.String("persona", ev.Persona),
		zap.String("strategy", ev.Strategy),
		zap.Float64("total_ms", ev.TimingMs.Total),
	}
	if ev.Kind != "" {
		fields = append(fields, zap.String("kind", ev.Kind))
	}
	if ev.Status >= 500 {
		o.logger.Warn("request failed", fields...)
		return
	}
	o.logger.Info("request completed", fields...)
}
