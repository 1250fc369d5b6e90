package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubsearch/config"
	"pubsearch/internal/domain"
)

func fakeEmbeddingServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{}
		// Reply out of order to check the index field is honored.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			resp.Data = append(resp.Data, embeddingData{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIEmbedderBatchesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddingServer(t, 4, &calls)
	defer srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", srv.URL, Options{Dimension: 4, BatchSize: 2})
	require.NoError(t, err)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, v := range vecs {
		assert.Len(t, v, 4)
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "nomic-embed-text", e.ModelName())
}

func TestOpenAIEmbedderDimensionMismatch(t *testing.T) {
	srv := fakeEmbeddingServer(t, 3, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", srv.URL, Options{Dimension: 768})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", srv.URL, Options{})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIEmbedderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", url, Options{Timeout: time.Second})
	require.NoError(t, err)

	err = Probe(context.Background(), e)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestOpenAIEmbedderMissingKey(t *testing.T) {
	t.Setenv("PUBSEARCH_TEST_MISSING_KEY", "")

	_, err := NewOpenAIEmbedder("PUBSEARCH_TEST_MISSING_KEY", "text-embedding-3-small", Options{})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)

	a, err := e.Embed(context.Background(), []string{"bone loss in microgravity", "bone loss in microgravity"})
	require.NoError(t, err)
	assert.Equal(t, a[0], a[1])

	var norm float64
	for _, v := range a[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.Equal(t, HashModelName, e.ModelName())
	assert.Equal(t, 64, e.Dimension())
}

func TestHashEmbedderRelatedTextsAreCloser(t *testing.T) {
	e := NewHashEmbedder(256)

	vecs, err := e.Embed(context.Background(), []string{
		"bone loss microgravity",
		"microgravity causes bone loss in astronauts",
		"plant root growth under red light",
	})
	require.NoError(t, err)

	near := l2(vecs[0], vecs[1])
	far := l2(vecs[0], vecs[2])
	assert.Less(t, near, far)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder(8)

	vecs, err := e.Embed(context.Background(), []string{""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vecs[0])
}

type slowEmbedder struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return make([][]float32, len(texts)), nil
}

func (s *slowEmbedder) Dimension() int    { return 0 }
func (s *slowEmbedder) ModelName() string { return "slow" }

func TestGuardSerializesCalls(t *testing.T) {
	inner := &slowEmbedder{}
	g := NewGuard(inner, 1, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Embed(context.Background(), []string{"q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inner.maxSeen)
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (shortEmbedder) Dimension() int    { return 4 }
func (shortEmbedder) ModelName() string { return "short" }

func TestGuardRejectsShortResult(t *testing.T) {
	g := NewGuard(shortEmbedder{}, 1, 0)

	_, err := g.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingEmbedder) Dimension() int    { return 4 }
func (blockingEmbedder) ModelName() string { return "blocking" }

func TestGuardKeepsDeadlineInChain(t *testing.T) {
	g := NewGuard(blockingEmbedder{}, 1, 20*time.Millisecond)

	_, err := g.Embed(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestGuardWaitTimeoutKeepsDeadline(t *testing.T) {
	g := NewGuard(blockingEmbedder{}, 1, 20*time.Millisecond)

	// Hold the only slot so the second call times out while waiting.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Embed(context.Background(), []string{"first"})
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := g.Embed(context.Background(), []string{"second"})
	<-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("cuda out of memory")
}
func (failingEmbedder) Dimension() int    { return 4 }
func (failingEmbedder) ModelName() string { return "failing" }

func TestProbeWrapsFailures(t *testing.T) {
	err := Probe(context.Background(), failingEmbedder{})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "cuda out of memory")
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Embedding
	cfg.Provider = "hash"
	cfg.Dimension = 32

	e, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, HashModelName, e.ModelName())
	assert.Equal(t, 32, e.Dimension())
	require.NoError(t, Probe(context.Background(), e))

	cfg.Provider = "word2vec"
	_, err = New(cfg)
	assert.Error(t, err)
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
