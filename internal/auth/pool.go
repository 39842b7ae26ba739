package auth

import (
	"context"
	"runtime"
	"time"

	"github.com/jjudge-oj/accounts/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// HashPool runs hashing and verification with bounded concurrency so that a
// burst of sign-ins cannot allocate unbounded Argon2 memory.
type HashPool struct {
	hasher  *Hasher
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

// NewHashPool bounds hasher to size concurrent computations. A size below one
// uses GOMAXPROCS. m may be nil.
func NewHashPool(hasher *Hasher, size int, m *metrics.Metrics) *HashPool {
	if size < 1 {
		size = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(size)),
		metrics: m,
	}
}

// Hash hashes password once a slot is free. It returns ctx.Err() if ctx ends first.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	var encoded string
	err := p.run(ctx, "hash", func() error {
		var err error
		encoded, err = p.hasher.Hash(password)
		return err
	})
	return encoded, err
}

// Verify checks password against encoded once a slot is free.
func (p *HashPool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	var ok bool
	err := p.run(ctx, "verify", func() error {
		var err error
		ok, err = p.hasher.Verify(password, encoded)
		return err
	})
	return ok, err
}

func (p *HashPool) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		p.metrics.HashStarted()
		defer p.metrics.HashFinished()
		done <- fn()
	}()

	// The computation cannot be interrupted; the slot is held until it ends
	// even if the caller stops waiting.
	select {
	case err := <-done:
		p.metrics.ObserveHash(op, time.Since(start))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
