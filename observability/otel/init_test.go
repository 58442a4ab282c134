package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv(envEndpoint, "")
	_, ok := FromEnv("stakectl", "dev")
	require.False(t, ok)
}

func TestFromEnvParsesExporterSettings(t *testing.T) {
	t.Setenv(envEndpoint, "http://collector:4318/")
	t.Setenv(envHeaders, "authorization=Bearer abc, x-team = ledger")
	t.Setenv(envMetrics, "true")

	cfg, ok := FromEnv("stakectl", "dev")
	require.True(t, ok)
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.True(t, cfg.Insecure)
	require.True(t, cfg.Traces)
	require.True(t, cfg.Metrics)
	require.Equal(t, map[string]string{"authorization": "Bearer abc", "x-team": "ledger"}, cfg.Headers)

	t.Setenv(envInsecure, "false")
	t.Setenv(envSample, "0.25")
	cfg, _ = FromEnv("stakectl", "dev")
	require.False(t, cfg.Insecure)
	require.InDelta(t, 0.25, cfg.SampleRatio, 1e-9)
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExportersShutsDownCleanly(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "stakectl"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.NotNil(t, Tracer("stakectl"))
}
