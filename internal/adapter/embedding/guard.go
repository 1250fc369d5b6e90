package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

// Guard serializes access to a shared embedding model and bounds every call
// with a timeout. With maxConcurrent = 1 the model is never invoked reentrantly.
type Guard struct {
	inner   port.Embedder
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewGuard(inner port.Embedder, maxConcurrent int, timeout time.Duration) *Guard {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Guard{
		inner:   inner,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: timeout,
	}
}

func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for embedder: %w", domain.ErrModelUnavailable, err)
	}
	defer g.sem.Release(1)

	vecs, err := g.inner.Embed(ctx, texts)
	if err != nil {
		return nil, asUnavailable(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrModelUnavailable, len(vecs), len(texts))
	}
	return vecs, nil
}

func (g *Guard) Dimension() int {
	return g.inner.Dimension()
}

func (g *Guard) ModelName() string {
	return g.inner.ModelName()
}

// Probe embeds a sentinel text to confirm the backend is reachable and produces
// vectors of the advertised dimension.
func Probe(ctx context.Context, e port.Embedder) error {
	vecs, err := e.Embed(ctx, []string{"embedding backend readiness check"})
	if err != nil {
		return fmt.Errorf("embedder %s: %w", e.ModelName(), asUnavailable(err))
	}
	if len(vecs) != 1 || len(vecs[0]) != e.Dimension() {
		return fmt.Errorf("%w: embedder %s returned malformed vector", domain.ErrModelUnavailable, e.ModelName())
	}
	return nil
}

// asUnavailable marks err as ErrModelUnavailable and keeps the cause in the
// chain, so a deadline still reads as context.DeadlineExceeded.
func asUnavailable(err error) error {
	if errors.Is(err, domain.ErrModelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrModelUnavailable, err)
}
