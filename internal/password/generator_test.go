package password

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/dbrotate/internal/errors"
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGenerateSatisfiesPolicy(t *testing.T) {
	for _, length := range []int{MinLength, 8, 16, 30, 64, 128} {
		g, err := New(length)
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			pw, err := g.Generate()
			require.NoError(t, err, "length %d", length)

			assert.Len(t, pw, length)
			assert.Regexp(t, alphanumeric, pw)
			assert.Regexp(t, `[a-z]`, pw)
			assert.Regexp(t, `[A-Z]`, pw)
			assert.GreaterOrEqual(t, countDigits(pw), MinDigits)
		}
	}
}

func TestNewRejectsShortLength(t *testing.T) {
	for _, length := range []int{-1, 0, 1, 4, 5, 6} {
		g, err := New(length)
		assert.Nil(t, g)

		var cfgErr dserrors.ConfigError
		require.True(t, errors.As(err, &cfgErr), "length %d", length)
		assert.Equal(t, "password_length", cfgErr.Field)
		assert.Equal(t, length, cfgErr.Value)
	}
}

func TestGenerateAttemptsExhausted(t *testing.T) {
	// A stream of zero bytes always maps to 'a', which never satisfies the policy.
	g, err := New(10, WithReader(zeroReader{}), WithMaxAttempts(3))
	require.NoError(t, err)

	pw, err := g.Generate()
	assert.Empty(t, pw)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestGenerateRandomSourceFailure(t *testing.T) {
	g, err := New(10, WithReader(bytes.NewReader(nil)))
	require.NoError(t, err)

	_, err = g.Generate()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGenerateUniqueness(t *testing.T) {
	g, err := New(30)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		pw, err := g.Generate()
		require.NoError(t, err)
		assert.False(t, seen[pw], "duplicate password generated")
		seen[pw] = true
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"aB12345", true},
		{"aB1234", false},
		{"ab12345", false},
		{"AB12345", false},
		{"aB12345!", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.input))
		})
	}
}

func TestLength(t *testing.T) {
	g, err := New(30)
	require.NoError(t, err)
	assert.Equal(t, 30, g.Length())
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func countDigits(s string) int {
	n := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			n++
		}
	}
	return n
}
