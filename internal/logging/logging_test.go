package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitWriterLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logger := InitWriter(&buf, false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	logger = InitWriter(&buf, true)
	logger.Debug().Msg("details")
	assert.Contains(t, buf.String(), "details")
}

func TestWithComponent(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	InitWriter(&buf, false)
	l := WithComponent("director")
	l.Info().Msg("path ready")
	assert.Contains(t, buf.String(), "director")
	assert.Contains(t, buf.String(), "path ready")
}
