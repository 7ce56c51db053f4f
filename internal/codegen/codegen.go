// Package codegen hands out random short codes that are not yet taken.
package codegen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MagnunAVF/shortener-core/internal"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultLength      = 7
	DefaultMaxAttempts = 10

	minCustomLength = 3
	maxCustomLength = 20
)

// ExistenceChecker is the slice of the record store the generator needs.
type ExistenceChecker interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

type Generator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	length      int
	maxAttempts int
	checker     ExistenceChecker
}

type Option func(*Generator)

func WithLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.length = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithSeed makes the code sequence reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func New(checker ExistenceChecker, opts ...Option) *Generator {
	now := uint64(time.Now().UnixNano())
	g := &Generator{
		rnd:         rand.New(rand.NewPCG(now, rand.Uint64())),
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		checker:     checker,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a random candidate without checking the store.
func (g *Generator) Next() string {
	buf := make([]byte, g.length)
	g.mu.Lock()
	for i := range buf {
		buf[i] = alphabet[g.rnd.IntN(len(alphabet))]
	}
	g.mu.Unlock()
	return string(buf)
}

// Allocate returns a code that the store did not know about when checked.
// The caller still has to insert it; the unique index decides races.
func (g *Generator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.Next()
		taken, err := g.checker.ExistsByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%w: %w", internal.ErrStoreUnavailable, err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", internal.ErrCapacityExhausted
}

// Valid reports whether code is acceptable as a caller supplied custom code.
func Valid(code string) bool {
	if len(code) < minCustomLength || len(code) > maxCustomLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
