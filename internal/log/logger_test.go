// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureOnce(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	// Second Configure must be a no-op.
	Configure(Config{Level: "error", Output: &bytes.Buffer{}, Service: "other"})

	lg := WithComponent("listener")
	lg.Info().Str(FieldEvent, "test.event").Msg("hello")

	require.NotZero(t, buf.Len(), "expected log output on the first configured writer")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "listener", entry[FieldComponent])
	assert.Equal(t, "test.event", entry[FieldEvent])
}

func TestDerive(t *testing.T) {
	l := Derive(nil)
	// A nil builder must not panic and must return a usable logger.
	l.Debug().Msg("derived")
}
