package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	Logger().Info("pool created", "side", "top")
	assert.Contains(t, buf.String(), "pool created")
	assert.Contains(t, buf.String(), "side=top")
}

func TestNewTextLevel(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewText("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewText("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewText("bogus").Enabled(ctx, slog.LevelInfo))
}
