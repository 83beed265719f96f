package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func neverExists(ctx context.Context, code string) (bool, error) { return false, nil }

func TestGenerateFormat(t *testing.T) {
	g := New(neverExists)
	code, err := g.Generate(context.Background(), PrefixRegistration)
	require.NoError(t, err)
	require.Len(t, code, 12)
	require.True(t, strings.HasPrefix(code, "REG-"))
	for _, r := range code[4:] {
		require.Contains(t, Alphabet, string(r))
	}
}

func TestGenerateUniqueness(t *testing.T) {
	g := New(neverExists)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code, err := g.Generate(context.Background(), PrefixApplication)
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(ctx context.Context, code string) (bool, error) {
		calls++
		return calls < 3, nil
	}
	g := New(exists)
	code, err := g.Generate(context.Background(), PrefixRegistration)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, HasPrefix(code, PrefixRegistration))
}

func TestGenerateFallbackAfterExhaustion(t *testing.T) {
	always := func(ctx context.Context, code string) (bool, error) { return true, nil }
	pinned := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	g := New(always, WithRetries(5), WithNow(func() time.Time { return pinned }))
	code, err := g.Generate(context.Background(), PrefixRegistration)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(code, "REG-1748764800000"))
}

func TestGeneratePropagatesExistsError(t *testing.T) {
	boom := errors.New("db down")
	g := New(func(ctx context.Context, code string) (bool, error) { return false, boom })
	_, err := g.Generate(context.Background(), PrefixRegistration)
	require.ErrorIs(t, err, boom)
}

func TestGenerateRequiresPrefix(t *testing.T) {
	g := New(neverExists)
	_, err := g.Generate(context.Background(), "")
	require.Error(t, err)
}

func TestHasPrefix(t *testing.T) {
	require.True(t, HasPrefix("REG-ABCD2345", "REG"))
	require.True(t, HasPrefix("APP-ABCD2345", "app"))
	require.False(t, HasPrefix("REGABCD2345", "REG"))
	require.False(t, HasPrefix("APP-ABCD2345", "REG"))
}
