package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "relay", "info", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("persona", "girl").Msg("turn relayed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "turn relayed", entry["message"])
	assert.Equal(t, "girl", entry["persona"])
	assert.Equal(t, "relay", entry["component"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewWithWriterDefaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "bot", "", "text")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Msg("bot started")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "bot started")
	assert.Contains(t, buf.String(), "component")
}

func TestNewWithWriterRejectsBadInput(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "relay", "loud", "json")
	assert.ErrorContains(t, err, "loud")

	_, err = NewWithWriter(&bytes.Buffer{}, "relay", "info", "xml")
	assert.ErrorContains(t, err, "xml")
}
