// Package password generates alphanumeric database passwords that satisfy the
// complexity policy: at least one lowercase letter, one uppercase letter and
// MinDigits digits. Symbols are never produced; downstream consumers embed the
// password in connection URIs without escaping.
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	dserrors "github.com/systmms/dbrotate/internal/errors"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// MinDigits is the number of digit characters every password must carry
	MinDigits = 5
	// MinLength is the shortest length for which the policy can be satisfied:
	// MinDigits digits plus one lowercase and one uppercase letter.
	MinLength = MinDigits + 2
	// DefaultMaxAttempts bounds rejection sampling. At MinLength roughly one candidate
	// in 1250 is accepted, so the bound must sit well above that.
	DefaultMaxAttempts = 100000
)

// ErrAttemptsExhausted is returned when no candidate satisfied the policy within the attempt bound.
var ErrAttemptsExhausted = errors.New("password policy not satisfied within attempt limit")

// Generator draws candidates uniformly from the alphanumeric alphabet and keeps the first one
// that satisfies the policy.
type Generator struct {
	length      int
	maxAttempts int
	random      io.Reader
}

// Option configures a Generator
type Option func(*Generator)

// WithMaxAttempts overrides DefaultMaxAttempts
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithReader replaces crypto/rand.Reader (for testing)
func WithReader(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// New returns a generator for passwords of the given length. Lengths below MinLength
// are a configuration error: the digit requirement could never be met.
func New(length int, opts ...Option) (*Generator, error) {
	if length < MinLength {
		return nil, dserrors.ConfigError{
			Field:      "password_length",
			Value:      length,
			Message:    fmt.Sprintf("password length must be at least %d to satisfy the complexity policy", MinLength),
			Suggestion: fmt.Sprintf("Set PASSWORD_LENGTH to %d or more (default 30)", MinLength),
		}
	}

	g := &Generator{
		length:      length,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Length returns the configured password length
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a fresh password satisfying the policy
func (g *Generator) Generate() (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", err
		}
		if Satisfies(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w (%d attempts, length %d)", ErrAttemptsExhausted, g.maxAttempts, g.length)
}

func (g *Generator) candidate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Satisfies reports whether s meets the complexity policy and is alphanumeric only.
func Satisfies(s string) bool {
	var lower, upper, digits int
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
			lower++
		case c >= 'A' && c <= 'Z':
			upper++
		case c >= '0' && c <= '9':
			digits++
		default:
			return false
		}
	}
	return lower >= 1 && upper >= 1 && digits >= MinDigits
}
