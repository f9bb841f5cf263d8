package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storagecrypt.log")

	log, closer := New(Options{File: path, Level: "debug", MaxSizeMB: 1})
	log.With("component", "test").Debug(context.Background(), "hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Options{Output: &buf, Level: "warn"})
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept")
	require.NoError(t, closer.Close())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}

func TestNew_StdoutCloserIsNoop(t *testing.T) {
	_, closer := New(Options{})
	require.NoError(t, closer.Close())
}

func TestNop_DiscardsEverything(t *testing.T) {
	l := Nop()
	ctx := context.Background()
	require.NotPanics(t, func() {
		l.Debug(ctx, "x")
		l.Info(ctx, "x")
		l.Warn(ctx, "x")
		l.Error(ctx, "x")
		l.With("a", 1).Info(ctx, "y")
	})
}
