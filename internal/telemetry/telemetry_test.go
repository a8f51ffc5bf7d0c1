package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/gamestate/internal/config"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  false,
		Endpoint: "http://localhost:4318",
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx), "noop shutdown ignores cancelled context")
}

func TestSetup_CreatesProvider(t *testing.T) {
	// 不可路由地址，不会真正导出
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "gamestate-test",
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracer(t *testing.T) {
	t.Parallel()

	_, span := Tracer().Start(context.Background(), "test")
	defer span.End()
	assert.NotNil(t, span)
}
