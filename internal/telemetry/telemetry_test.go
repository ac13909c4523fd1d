package telemetry

import (
	"context"
	"testing"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("PLAYER_OTEL_ENDPOINT", "")
	t.Setenv("PLAYER_OTEL_ENABLED", "")

	shutdown, err := Setup(context.Background(), "stageplayer-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupDisabled(t *testing.T) {
	t.Setenv("PLAYER_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("PLAYER_OTEL_ENABLED", "FALSE")

	shutdown, err := Setup(context.Background(), "stageplayer-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// non-routable, nothing is exported
	t.Setenv("PLAYER_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("PLAYER_OTEL_ENABLED", "")

	shutdown, err := Setup(context.Background(), "stageplayer-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
