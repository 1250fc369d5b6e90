package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubsearch/config"
	"pubsearch/internal/domain"
)

type fakeService struct {
	lastQuery string
	lastK     int
	searchErr error
}

func (f *fakeService) Search(ctx context.Context, query string, k int) ([]domain.EnrichedResult, error) {
	f.lastQuery, f.lastK = query, k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if k > 50 {
		return nil, fmt.Errorf("%w: k too large", domain.ErrInvalidQuery)
	}
	return []domain.EnrichedResult{{Score: 0.5, PubID: "PMC1", Section: "abstract", Excerpt: "bone", PubTitle: "T", PubYear: "2019", PubAuthors: "A"}}, nil
}

func (f *fakeService) Publication(ctx context.Context, pubID string) (domain.PublicationRecord, error) {
	if pubID != "PMC1" {
		return domain.PublicationRecord{}, fmt.Errorf("%w: publication %s", domain.ErrNotFound, pubID)
	}
	return domain.PublicationRecord{ID: "PMC1", Title: "T", Sections: domain.Sections{{Name: "abstract", Text: "x"}}}, nil
}

func (f *fakeService) Summarize(ctx context.Context, pubID string) (domain.Summary, error) {
	if pubID != "PMC1" {
		return domain.Summary{}, fmt.Errorf("%w: publication %s", domain.ErrNotFound, pubID)
	}
	return domain.Summary{PubID: "PMC1", Title: "T", Summary: "Title: T", FullSections: []string{"abstract"}}, nil
}

func (f *fakeService) Health(ctx context.Context) (domain.Health, error) {
	return domain.Health{Status: "ok", Chunks: 9, Publications: 4}, nil
}

func newTestServer(svc *fakeService) http.Handler {
	return New(svc, config.DefaultConfig().Server, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}), http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(9), body["n_chunks"])
	assert.Equal(t, float64(4), body["n_publications"])
}

func TestSearch(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestServer(svc), http.MethodGet, "/search?q=bone+loss&k=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bone loss", svc.lastQuery)
	assert.Equal(t, 3, svc.lastK)

	var hits []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	for _, field := range []string{"score", "pub_id", "section", "excerpt", "pub_title", "pub_year", "pub_authors"} {
		assert.Contains(t, hits[0], field)
	}
}

func TestSearchDefaultsK(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestServer(svc), http.MethodGet, "/search?q=bone")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, svc.lastK)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		svc    *fakeService
		method string
		target string
		status int
		code   string
	}{
		{"empty query", &fakeService{}, http.MethodGet, "/search?q=", http.StatusBadRequest, "invalid_query"},
		{"k not a number", &fakeService{}, http.MethodGet, "/search?q=x&k=many", http.StatusBadRequest, "invalid_query"},
		{"k zero", &fakeService{}, http.MethodGet, "/search?q=x&k=0", http.StatusBadRequest, "invalid_query"},
		{"k too large", &fakeService{}, http.MethodGet, "/search?q=x&k=51", http.StatusBadRequest, "invalid_query"},
		{"unknown publication", &fakeService{}, http.MethodGet, "/pub/UNKNOWN_ID", http.StatusNotFound, "not_found"},
		{"unknown summary", &fakeService{}, http.MethodPost, "/summarize/UNKNOWN_ID", http.StatusNotFound, "not_found"},
		{"model down", &fakeService{searchErr: domain.ErrModelUnavailable}, http.MethodGet, "/search?q=x", http.StatusServiceUnavailable, "model_unavailable"},
		{"corrupt index", &fakeService{searchErr: fmt.Errorf("%w: no metadata", domain.ErrIndexCorruption)}, http.MethodGet, "/search?q=x", http.StatusInternalServerError, "index_corruption"},
		{"timeout", &fakeService{searchErr: context.DeadlineExceeded}, http.MethodGet, "/search?q=x", http.StatusGatewayTimeout, "timeout"},
		{"embedder timeout", &fakeService{searchErr: fmt.Errorf("%w: %w", domain.ErrModelUnavailable, context.DeadlineExceeded)}, http.MethodGet, "/search?q=x", http.StatusGatewayTimeout, "timeout"},
		{"other", &fakeService{searchErr: errors.New("boom")}, http.MethodGet, "/search?q=x", http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(tt.svc), tt.method, tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Detail)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestPublicationAndSummary(t *testing.T) {
	h := newTestServer(&fakeService{})

	rec := do(t, h, http.MethodGet, "/pub/PMC1")
	require.Equal(t, http.StatusOK, rec.Code)
	var pub domain.PublicationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pub))
	assert.Equal(t, "PMC1", pub.ID)

	rec = do(t, h, http.MethodPost, "/summarize/PMC1")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	for _, field := range []string{"pub_id", "title", "authors", "year", "summary", "full_sections"} {
		assert.Contains(t, sum, field)
	}

	rec = do(t, h, http.MethodGet, "/summarize/PMC1")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMiddleware(t *testing.T) {
	h := newTestServer(&fakeService{})

	rec := do(t, h, http.MethodOptions, "/search")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc", rr.Header().Get(requestIDHeader))

	rec = do(t, h, http.MethodGet, "/health")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.DefaultConfig().Server
	s := New(&fakeService{}, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
