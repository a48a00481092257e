package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFormat(t *testing.T) {
	var buf bytes.Buffer
	log := For(New(&buf, "info"), "sweeper")

	log.With("pass", "p-1").Info("pass finished", "checked", 3)

	line := strings.TrimSuffix(buf.String(), "\n")
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 6)
	assert.Equal(t, "INFO", fields[1])
	assert.Equal(t, "sweeper", fields[2])
	assert.Equal(t, "pass finished", fields[3])
	assert.Equal(t, "pass=p-1", fields[4])
	assert.Equal(t, "checked=3", fields[5])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestDiscardAndNilBase(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, "x").Error("dropped")
		Discard().Error("dropped")
	})
}
