package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	appCtx "github.com/baechuer/artfront/services/visitor-state/internal/pkg/context"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_JSONAndRequestID(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	ctx := appCtx.WithRequestID(context.Background(), "rid-1")
	WithCtx(ctx).Info().Str("k", "v").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "rid-1", line["request_id"])
	require.Equal(t, "v", line["k"])
}

func TestInitWithWriter_LevelFilter(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	Logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	Logger.Warn().Msg("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestInitWithWriter_BadLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "nope")

	var buf bytes.Buffer
	InitWithWriter(&buf)

	Logger.Debug().Msg("dropped")
	Logger.Info().Msg("kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}
