package activation

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink logging through logger at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Name() string { return "stdout" }

func (s *LogSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	s.logger.Info("request decision",
		zap.String("request_id", ev.RequestID),
		zap.String("decision", string(ev.Decision)),
		zap.String("kind", ev.Kind),
		zap.Int("status", ev.Status),
		zap.String("persona", ev.Persona),
		zap.String("strategy", ev.Strategy),
		zap.String("plan", ev.Plan),
		zap.Bool("inference_called", ev.InferenceCalled),
		zap.Float64("entitlement_ms", ev.TimingMs.Entitlement),
		zap.Float64("inference_ms", ev.TimingMs.Inference),
		zap.Float64("total_ms", ev.TimingMs.Total),
	)
	return nil
}

func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}
