package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNewWithWriter_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "prod")

	logger.Debug().Msg("hidden")
	logger.Info().Str("clinic_id", "c-1").Msg("slots fetched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "slots fetched", line["message"])
	assert.Equal(t, "c-1", line["clinic_id"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "dev")

	logger.Debug().Msg("selection changed")

	out := buf.String()
	assert.Contains(t, out, "selection changed")
	assert.False(t, json.Valid(buf.Bytes()))
}
