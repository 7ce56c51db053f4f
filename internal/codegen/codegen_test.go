package codegen

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MagnunAVF/shortener-core/internal"
)

type setChecker struct {
	mu    sync.Mutex
	taken map[string]bool
	calls int
	err   error
	all   bool
}

func (s *setChecker) ExistsByCode(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return s.all || s.taken[code], nil
}

func TestNextUsesAlphabetAndLength(t *testing.T) {
	g := New(&setChecker{}, WithSeed(1))
	for i := 0; i < 200; i++ {
		code := g.Next()
		require.Len(t, code, DefaultLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(alphabet, c), "unexpected symbol %q", c)
		}
	}
}

func TestSeededGeneratorsAreReproducible(t *testing.T) {
	a := New(&setChecker{}, WithSeed(42))
	b := New(&setChecker{}, WithSeed(42))
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestAllocateSkipsTakenCodes(t *testing.T) {
	gen := New(&setChecker{}, WithSeed(7))
	first := gen.Next()
	second := gen.Next()

	checker := &setChecker{taken: map[string]bool{first: true}}
	g := New(checker, WithSeed(7))

	code, err := g.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, code)
	assert.Equal(t, 2, checker.calls)
}

func TestAllocateCapacityExhausted(t *testing.T) {
	checker := &setChecker{all: true}
	g := New(checker, WithMaxAttempts(3))

	_, err := g.Allocate(context.Background())
	assert.ErrorIs(t, err, internal.ErrCapacityExhausted)
	assert.Equal(t, 3, checker.calls)
}

func TestAllocateStoreError(t *testing.T) {
	g := New(&setChecker{err: errors.New("connection refused")})

	_, err := g.Allocate(context.Background())
	assert.ErrorIs(t, err, internal.ErrStoreUnavailable)
}

func TestConcurrentNext(t *testing.T) {
	g := New(&setChecker{}, WithLength(10))
	var wg sync.WaitGroup
	codes := make(chan string, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				codes <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(codes)
	for c := range codes {
		assert.Len(t, c, 10)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"abc":                   true,
		"my-link_2":             true,
		"ab":                    false,
		"aaaaaaaaaaaaaaaaaaaaa": false,
		"has space":             false,
		"emoji🙂":                false,
		"":                      false,
	}
	for code, want := range cases {
		assert.Equal(t, want, Valid(code), code)
	}
}
