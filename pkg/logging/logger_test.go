package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"warn level", "WARN", zerolog.WarnLevel},
		{"default info", "", zerolog.InfoLevel},
		{"garbage falls back to info", "loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewWithWriter(&bytes.Buffer{}, tt.level)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info").With("ledger")
	logger.Info().Str("appointment_id", "a1").Msg("confirmed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "a1", line["appointment_id"])
	assert.Equal(t, "confirmed", line["message"])
}

func TestDefaultReturnsNewInstances(t *testing.T) {
	a := Default()
	b := Default()
	assert.NotSame(t, a, b)
	assert.Equal(t, zerolog.InfoLevel, a.GetLevel())
}
