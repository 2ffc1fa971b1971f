package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{" warn ", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown", "book_id", "li_1")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "book_id=li_1")
}

func TestWith_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := With(New(&buf, "info"), "run_id", "abcd1234")

	logger.Info("cycle started")
	assert.Contains(t, buf.String(), "run_id=abcd1234")
}
