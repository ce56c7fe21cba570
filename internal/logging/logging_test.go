package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := newWithWriter("nonsense", "json", &buf)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	componentLogger := WithComponent(logger, "reconcile")
	componentLogger.Info().Int64("owner_id", 4).Msg("applied")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reconcile", entry["component"])
	assert.Equal(t, "kitchenpos", entry["service"])
	assert.Equal(t, float64(4), entry["owner_id"])
}
