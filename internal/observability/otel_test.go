package observability

import "testing"

func TestOtelEnvParsing(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "3")
	if got := otelSampleRatio(); got != 1 {
		t.Fatalf("ratio clamp: %v", got)
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "nope")
	if got := otelSampleRatio(); got != 0.1 {
		t.Fatalf("ratio default: %v", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, bad ,=v,tenant=sinag")
	h := otelHeaders()
	if len(h) != 2 || h["x-api-key"] != "abc" || h["tenant"] != "sinag" {
		t.Fatalf("headers: %v", h)
	}
}
