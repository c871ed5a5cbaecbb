package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " WARN ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ParseLevel(tt.in).Level())
		})
	}
}

func TestNewTextWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewText(&buf, "debug")
	log.Debug("ollama models discovered", "count", 2)
	require.Contains(t, buf.String(), "ollama models discovered")
	require.Contains(t, buf.String(), "count=2")
}
