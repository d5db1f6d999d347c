package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Gate.Strategy)) {
	case "concurrent", "sequential":
	default:
		return fmt.Errorf("gate.strategy must be concurrent or sequential, got %q", cfg.Gate.Strategy)
	}
	if cfg.Gate.RequestTimeout <= 0 {
		return errors.New("gate.request_timeout must be positive")
	}

	if err := validateEntitlementConfig(cfg.Entitlement); err != nil {
		return err
	}

	if len(cfg.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	if strings.TrimSpace(cfg.Inference.Provider) == "" {
		return errors.New("inference.provider must be set")
	}
	if _, ok := cfg.Providers[cfg.Inference.Provider]; !ok {
		return fmt.Errorf("inference.provider %q not found in providers", cfg.Inference.Provider)
	}
	for name, p := range cfg.Providers {
		if err := validateProviderConfig(name, p); err != nil {
			return err
		}
	}
	if cfg.Inference.MaxTokens < 0 {
		return errors.New("inference.max_tokens must not be negative")
	}
	if cfg.Inference.Temperature < 0 || cfg.Inference.Temperature > 2 {
		return fmt.Errorf("inference.temperature must be between 0 and 2, got %v", cfg.Inference.Temperature)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	if err := validateActivationConfig(cfg.Activation); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateEntitlementConfig(e EntitlementConfig) error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return fmt.Errorf("entitlement.base_url must be set (or export %s)", e.BaseURLEnv)
	}
	if err := validateHTTPURL(e.BaseURL, e.AllowPrivateNetworks); err != nil {
		return fmt.Errorf("entitlement.base_url %w", err)
	}
	return nil
}

func validateProviderConfig(name string, p ProviderConfig) error {
	typ := strings.ToLower(strings.TrimSpace(p.Type))
	switch typ {
	case "openai", "gemini":
		if strings.TrimSpace(p.APIKeyEnv) == "" && strings.TrimSpace(p.APIKey) == "" {
			return fmt.Errorf("provider %q missing api key (env or api_key)", name)
		}
	case "fake":
	case "":
		return fmt.Errorf("provider %q missing type", name)
	default:
		return fmt.Errorf("provider %q has unknown type %q", name, p.Type)
	}
	switch strings.ToLower(strings.TrimSpace(p.ResponseFormat)) {
	case "", "json_schema", "json_object":
	default:
		return fmt.Errorf("provider %q response_format must be json_schema or json_object", name)
	}
	if p.BaseURL != "" {
		if err := validateHTTPURL(p.BaseURL, p.AllowPrivateNetworks); err != nil {
			return fmt.Errorf("provider %q base_url %w", name, err)
		}
	}
	return nil
}

func validateHTTPURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("is invalid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be http or https")
	}
	if err := blockPrivateHost(u.Host, allowPrivate); err != nil {
		return fmt.Errorf("blocked: %w", err)
	}
	return nil
}

func validateActivationConfig(a ActivationConfig) error {
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "stdout":
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("activation sink %d (file_jsonl) missing path", i)
			}
			if s.MaxBytes < 0 {
				return fmt.Errorf("activation sink %d (file_jsonl) max_bytes must not be negative", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("activation sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("activation sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("activation sink %d (webhook) url must be http or https", i)
			}
		case "redis_stream":
			if strings.TrimSpace(s.Addr) == "" {
				return fmt.Errorf("activation sink %d (redis_stream) missing addr", i)
			}
			if _, _, err := net.SplitHostPort(s.Addr); err != nil {
				return fmt.Errorf("activation sink %d (redis_stream) addr must be host:port", i)
			}
			if s.MaxLen < 0 {
				return fmt.Errorf("activation sink %d (redis_stream) max_len must not be negative", i)
			}
		default:
			return fmt.Errorf("activation sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}

func blockPrivateHost(hostport string, allowPrivate bool) error {
	if allowPrivate {
		return nil
	}
	host := hostport
	if strings.Contains(hostport, "]") || strings.Contains(hostport, ":") {
		h, _, err := net.SplitHostPort(hostport)
		if err == nil {
			host = h
		}
	}
	lc := strings.ToLower(strings.TrimSpace(host))
	if lc == "localhost" {
		return errors.New("private network host localhost blocked for SSRF safety")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("private network IP %s blocked for SSRF safety", ip.String())
		}
	}
	return nil
}

var privateBlocks = []*net.IPNet{
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("169.254.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("::1"), Mask: net.CIDRMask(128, 128)},
	{IP: net.ParseIP("fc00::"), Mask: net.CIDRMask(7, 128)},
	{IP: net.ParseIP("fe80::"), Mask: net.CIDRMask(10, 128)},
}

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
