package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/straja-ai/tonegate/internal/activation"
	"github.com/straja-ai/tonegate/internal/config"
	"github.com/straja-ai/tonegate/internal/entitlement"
	"github.com/straja-ai/tonegate/internal/gate"
	"github.com/straja-ai/tonegate/internal/persona"
	"github.com/straja-ai/tonegate/internal/provider"
	"github.com/straja-ai/tonegate/internal/rewrite"
	"github.com/straja-ai/tonegate/internal/server"
	"github.com/straja-ai/tonegate/internal/telemetry"
)

// fakeRewrite is what the "fake" provider type answers with.
const fakeRewrite = `{"is_offensive":false,"suggestion":"Thanks for your message, I will get back to you shortly."}`

// app is a fully wired gateway.
type app struct {
	gate      *gate.Gate
	server    *server.Server
	emitter   *activation.Emitter
	telemetry *telemetry.Provider
	logger    *zap.Logger
}

// loadConfig loads, overrides and validates the configuration.
func loadConfig(path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Logging.Level = logLevel
	}
	if override != nil {
		override(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	personas, err := buildPersonas(cfg.Personas)
	if err != nil {
		return nil, err
	}

	checker, err := entitlement.NewClient(cfg.Entitlement.BaseURL, cfg.Entitlement.Timeout)
	if err != nil {
		return nil, err
	}

	pc := cfg.Providers[cfg.Inference.Provider]
	p, err := buildProvider(ctx, pc, cfg.Inference.Timeout)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", cfg.Inference.Provider, err)
	}
	rewriter := rewrite.New(p, rewrite.Options{
		Model:       cfg.Inference.Model,
		MaxTokens:   cfg.Inference.MaxTokens,
		Temperature: cfg.Inference.Temperature,
		Timeout:     cfg.Inference.Timeout,
	})

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "tonegate",
		Version:  version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	sinks, err := buildSinks(cfg.Activation.Sinks, logger)
	if err != nil {
		tel.Shutdown(ctx)
		return nil, err
	}
	emitter := activation.NewEmitter(activation.EmitterConfig{
		QueueSize: cfg.Activation.QueueSize,
		Workers:   cfg.Activation.Workers,
		Logger:    logger,
	}, sinks)
	obs := server.NewObserver(emitter, tel, logger)
	a := &app{emitter: emitter, telemetry: tel, logger: logger}

	strategy, err := gate.ParseStrategy(cfg.Gate.Strategy)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.gate, err = gate.New(personas, checker, rewriter,
		gate.WithStrategy(strategy),
		gate.WithRequestTimeout(cfg.Gate.RequestTimeout),
		gate.WithLogger(logger),
		gate.WithObserver(obs.Observe),
	)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.server, err = server.New(server.Options{
		Gate:         a.gate,
		Observer:     obs,
		Telemetry:    tel,
		Logger:       logger,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// close flushes audit events and telemetry.
func (a *app) close(ctx context.Context) {
	a.emitter.Close(ctx)
	a.telemetry.Shutdown(ctx)
}

func buildPersonas(pc config.PersonasConfig) (*persona.Registry, error) {
	if strings.TrimSpace(pc.File) != "" {
		reg, err := persona.Load(pc.File, pc.Default)
		if err != nil {
			return nil, err
		}
		return reg, nil
	}
	reg := persona.Builtin()
	if strings.TrimSpace(pc.Default) == "" {
		return reg, nil
	}
	ps := make([]persona.Persona, 0, len(reg.IDs()))
	for _, id := range reg.IDs() {
		p, _ := reg.Lookup(id)
		ps = append(ps, p)
	}
	return persona.NewRegistry(pc.Default, ps...)
}

func buildProvider(ctx context.Context, pc config.ProviderConfig, timeout time.Duration) (provider.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(pc.Type)) {
	case "openai":
		return provider.NewOpenAI(provider.OpenAIOptions{
			BaseURL: pc.BaseURL,
			APIKey:  pc.ResolveAPIKey(),
			Format:  strings.ToLower(strings.TrimSpace(pc.ResponseFormat)),
			Timeout: timeout,
		}), nil
	case "gemini":
		return provider.NewGemini(ctx, pc.ResolveAPIKey(), pc.BaseURL)
	case "fake":
		return provider.NewFake(fakeRewrite), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}

func buildSinks(cfgs []config.SinkConfig, logger *zap.Logger) ([]activation.Sink, error) {
	sinks := make([]activation.Sink, 0, len(cfgs))
	for i, sc := range cfgs {
		var (
			s   activation.Sink
			err error
		)
		switch strings.ToLower(strings.TrimSpace(sc.Type)) {
		case "stdout":
			s = activation.NewLogSink(logger)
		case "file_jsonl":
			s, err = activation.NewFileSink(sc.Path, sc.MaxBytes)
		case "webhook":
			s, err = activation.NewWebhookSink(sc.URL, sc.Headers, time.Duration(sc.TimeoutMs)*time.Millisecond)
		case "redis_stream":
			s, err = activation.NewRedisStreamSink(sc.Addr, sc.Stream, sc.MaxLen)
		default:
			err = fmt.Errorf("unknown type %q", sc.Type)
		}
		if err != nil {
			for _, built := range sinks {
				_ = built.Close(context.Background())
			}
			return nil, fmt.Errorf("activation sink %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
