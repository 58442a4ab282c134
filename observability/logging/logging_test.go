package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWriterRenamesKeys(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "stakectl", "test")
	logger.Warn("clock skew", "now", 5)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "WARN", line["severity"])
	require.Equal(t, "clock skew", line["message"])
	require.Equal(t, "stakectl", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFileWritesRotatedLog(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "logs", "stakectl.log")
	logger, closer, err := SetupFile(path, "stakectl", "")
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello"`)
	require.NotContains(t, string(data), `"env"`)
}

func TestMaskHeaders(t *testing.T) {
	group := MaskHeaders(map[string]string{"b": "2", "a": "1"})
	require.Equal(t, "headers", group.Key)
	attrs := group.Value.Group()
	require.Len(t, attrs, 2)
	require.Equal(t, "a", attrs[0].Key)
	require.Equal(t, RedactedValue, attrs[0].Value.String())
	require.Equal(t, "b", attrs[1].Key)
	require.Equal(t, RedactedValue, attrs[1].Value.String())

	require.Empty(t, MaskHeaders(nil).Value.Group())
}
