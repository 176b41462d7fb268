package roomcode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_DefaultShape(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, DefaultLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected char %q in %q", c, code)
		}
	}
}

func TestGenerate_CustomLength(t *testing.T) {
	g, err := New(Config{Length: 8})
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestNew_RejectsOutOfRangeLength(t *testing.T) {
	for _, n := range []int{-1, 1, MinLength - 1, MaxLength + 1} {
		_, err := New(Config{Length: n})
		assert.Error(t, err, "length %d", n)
	}
}

// A zero byte stream makes rand.Int return 0 for every draw, so every
// candidate is "AAAA".
func TestGenerate_Deterministic(t *testing.T) {
	g, err := New(Config{Rand: bytes.NewReader(make([]byte, 64))})
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "AAAA", code)
}

func TestGenerate_SkipsCodesInUse(t *testing.T) {
	seen := 0
	g, err := New(Config{
		InUse: func(code string) bool {
			seen++
			return seen <= 3
		},
	})
	require.NoError(t, err)

	_, err = g.Generate()
	require.NoError(t, err)
	assert.Equal(t, 4, seen)
}

func TestGenerate_ExhaustedWhenEverythingInUse(t *testing.T) {
	g, err := New(Config{
		InUse:       func(string) bool { return true },
		MaxAttempts: 5,
	})
	require.NoError(t, err)

	_, err = g.Generate()
	assert.ErrorIs(t, err, ErrExhausted)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestGenerate_PropagatesEntropyError(t *testing.T) {
	g, err := New(Config{Rand: failingReader{}})
	require.NoError(t, err)

	_, err = g.Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read entropy")
}
