package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "anime-catalog"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://otel.example.com:4318/")
	t.Setenv("OTEL_TRACES_SAMPLER_RATIO", "0.5")
	t.Setenv("SERVICE_VERSION", "1.2.3")
	t.Setenv("DEPLOY_ENV", "")

	cfg := ConfigFromEnv("anime-catalog")
	if cfg.Endpoint != "otel.example.com:4318" || cfg.Insecure {
		t.Fatalf("unexpected endpoint config: %+v", cfg)
	}
	if cfg.SamplerRatio != 0.5 || cfg.ServiceVersion != "1.2.3" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel-collector:4318")
	if cfg := ConfigFromEnv("anime-catalog"); !cfg.Insecure || cfg.Endpoint != "otel-collector:4318" {
		t.Fatalf("plain http endpoint should be insecure: %+v", cfg)
	}
}

func TestParseRatio(t *testing.T) {
	cases := map[string]float64{
		"":     1,
		"0.25": 0.25,
		"0":    0,
		"2":    1,
		"abc":  1,
	}
	for raw, want := range cases {
		if got := parseRatio(raw); got != want {
			t.Fatalf("parseRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestResourceAttributesSkipEmptyValues(t *testing.T) {
	attrs := resourceAttributes(Config{ServiceName: "anime-catalog"})
	if len(attrs) != 1 {
		t.Fatalf("expected only the service name, got %v", attrs)
	}
	attrs = resourceAttributes(Config{ServiceName: "anime-catalog", ServiceVersion: "1", Environment: "prod"})
	if len(attrs) != 3 {
		t.Fatalf("expected three attributes, got %v", attrs)
	}
}
