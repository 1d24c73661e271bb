package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "secret is redacted",
			input:    "my-secret-password",
			expected: "[REDACTED]",
		},
		{
			name:     "empty secret is still redacted",
			input:    "",
			expected: "[REDACTED]",
		},
		{
			name:     "alphanumeric password is redacted",
			input:    "aB3dE5fG7hJ9kL1",
			expected: "[REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Secret(tt.input).String())
			assert.Equal(t, tt.expected, Secret(tt.input).GoString())
		})
	}
}

func TestLoggerWritesRedactedSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, true)

	logger.Info("rotated %s with %s", "svc-backend", Secret("Sup3rS3cr3t99"))
	logger.Info("%#v", Secret("Sup3rS3cr3t99"))

	out := buf.String()
	assert.Contains(t, out, "✓ rotated svc-backend with [REDACTED]")
	assert.NotContains(t, out, "Sup3rS3cr3t99")
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, true)

	logger.Info("info %d", 1)
	logger.Warn("warn %d", 2)
	logger.Error("error %d", 3)
	logger.Debug("debug %d", 4)
	logger.DryRun("planned %d", 5)

	out := buf.String()
	assert.Contains(t, out, "✓ info 1\n")
	assert.Contains(t, out, "⚠ warn 2\n")
	assert.Contains(t, out, "✗ error 3\n")
	assert.Contains(t, out, "[DRY RUN] planned 5\n")
	assert.NotContains(t, out, "debug 4", "debug output must be suppressed unless enabled")
}

func TestLoggerDebugMode(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true, true)

	assert.True(t, logger.IsDebug())
	logger.Debug("checking role %s", "svc")
	assert.Equal(t, "[DEBUG] checking role svc\n", buf.String())
}

func TestLoggerColor(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false, false)

	logger.Error("boom")
	assert.Equal(t, fmt.Sprintf("%s boom\n", "\033[31m✗\033[0m"), buf.String())
}

func TestRedactFunction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "ALTER USER \"svc\" WITH PASSWORD 'secret123'",
			secrets:  []string{"secret123"},
			expected: "ALTER USER \"svc\" WITH PASSWORD '[REDACTED]'",
		},
		{
			name:     "multiple secrets redacted",
			input:    "postgres://admin:secret123@db/app?key=abc123",
			secrets:  []string{"secret123", "abc123"},
			expected: "postgres://admin:[REDACTED]@db/app?key=[REDACTED]",
		},
		{
			name:     "no secrets to redact",
			input:    "This has no secrets",
			secrets:  []string{},
			expected: "This has no secrets",
		},
		{
			name:     "empty secret ignored",
			input:    "This has no secrets",
			secrets:  []string{""},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.Info("nothing")
		logger.Error("still nothing")
	})
}
