package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Alphabet excludes visually ambiguous symbols (0, O, I, 1).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Code prefixes for the two lifecycle stages.
const (
	PrefixRegistration = "REG"
	PrefixApplication  = "APP"
)

const (
	codeLength      = 8
	defaultRetries  = 10
	fallbackRandLen = 4
)

// ExistsFunc reports whether a candidate code is already persisted.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator mints unique, hard-to-guess prefixed codes. It never persists
// anything itself; the caller stores the returned code together with its
// status and expiration in one write.
type Generator struct {
	exists  ExistsFunc
	retries int
	rand    func(alphabet string, n int) (string, error)
	now     func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithRetries overrides the collision-retry budget.
func WithRetries(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.retries = n
		}
	}
}

// WithRandom overrides the random-string source, for tests.
func WithRandom(fn func(alphabet string, n int) (string, error)) Option {
	return func(g *Generator) { g.rand = fn }
}

// WithNow overrides the clock used by the exhaustion fallback, for tests.
func WithNow(fn func() time.Time) Option {
	return func(g *Generator) { g.now = fn }
}

// New constructs a Generator around an existence check.
func New(exists ExistsFunc, opts ...Option) *Generator {
	g := &Generator{
		exists:  exists,
		retries: defaultRetries,
		rand:    randomString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh "{prefix}-XXXXXXXX" code that the existence
// check did not know. After the retry budget is exhausted it degrades to a
// timestamp-plus-random composition that sacrifices the clean format but
// guarantees termination.
func (g *Generator) Generate(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("codegen: prefix is required")
	}
	prefix = strings.ToUpper(prefix)

	for attempt := 0; attempt < g.retries; attempt++ {
		suffix, err := g.rand(Alphabet, codeLength)
		if err != nil {
			return "", fmt.Errorf("codegen: random suffix: %w", err)
		}
		candidate := prefix + "-" + suffix
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("codegen: existence check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	tail, err := g.rand(Alphabet, fallbackRandLen)
	if err != nil {
		return "", fmt.Errorf("codegen: fallback suffix: %w", err)
	}
	return fmt.Sprintf("%s-%d%s", prefix, g.now().UnixMilli(), tail), nil
}

// HasPrefix reports whether code carries the given stage prefix.
func HasPrefix(code, prefix string) bool {
	return strings.HasPrefix(code, strings.ToUpper(prefix)+"-")
}

func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
