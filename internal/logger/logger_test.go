package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WithQuiet(), WithWriter(&buf))

	log.Info("Hello", "who", "world")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "Hello", record["msg"])
	require.Equal(t, "world", record["who"])
	require.Equal(t, "INFO", record["level"])
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WithQuiet(), WithWriter(&buf))
	log.Debug("hidden")
	require.Empty(t, buf.String())

	log = NewLogger(WithQuiet(), WithDebug(), WithWriter(&buf))
	log.Debug("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestWithAttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WithQuiet(), WithWriter(&buf)).With("dag", "etl")

	log.Info("Run started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "etl", record["dag"])
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(WithQuiet(), WithWriter(&buf))

	ctx := WithLogger(context.Background(), log)
	require.Equal(t, log, FromContext(ctx))

	Info(ctx, "Through context", "n", 1)
	require.Contains(t, buf.String(), "Through context")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NotNil(t, FromContext(context.Background()))
}
