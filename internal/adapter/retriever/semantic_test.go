package retriever

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubsearch/internal/adapter/cache"
	"pubsearch/internal/adapter/embedding"
	"pubsearch/internal/adapter/memstore"
	"pubsearch/internal/adapter/vectorindex"
	"pubsearch/internal/domain"
	"pubsearch/internal/port"
)

const testDim = 256

var fixturePubs = []domain.PublicationRecord{
	{
		ID: "PMC100", Title: "Microgravity and the skeleton", Authors: "Ortiz A", Year: "2019",
		Sections: domain.Sections{
			{Name: "abstract", Text: "Spaceflight microgravity causes rapid bone loss in astronauts and rodents."},
			{Name: "results", Text: "Trabecular bone volume fell after thirty days of hindlimb unloading."},
		},
	},
	{
		ID: "PMC200", Title: "Roots in orbit", Authors: "Chen L", Year: "2021",
		Sections: domain.Sections{
			{Name: "abstract", Text: "Arabidopsis root growth and gravitropism under red light on the station."},
			{Name: "results", Text: "Root skewing increased while auxin transport genes were upregulated."},
		},
	},
	{
		ID: "PMC300", Title: "Radiation and the heart", Authors: "Patel R", Year: "2020",
		Sections: domain.Sections{
			{Name: "abstract", Text: "Galactic cosmic radiation exposure alters cardiac tissue remodeling in mice."},
			{Name: "discussion", Text: "Oxidative stress pathways explain the observed fibrosis after irradiation."},
		},
	},
	{
		ID: "PMC400", Title: "Immune shifts", Authors: "Novak K", Year: "2018",
		Sections: domain.Sections{
			{Name: "abstract", Text: "T cell activation is blunted during long duration missions."},
		},
	},
}

func fixtureEntries(t *testing.T, e port.Embedder, pubs []domain.PublicationRecord) []domain.Entry {
	t.Helper()
	var texts []string
	var metas []domain.ChunkMetadata
	for _, p := range pubs {
		for _, s := range p.Sections {
			texts = append(texts, s.Text)
			metas = append(metas, domain.ChunkMetadata{
				ChunkID: p.ID + "#" + s.Name + "#0",
				PubID:   p.ID,
				Section: s.Name,
				End:     len([]rune(s.Text)),
				Excerpt: s.Text,
			})
		}
	}
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	entries := make([]domain.Entry, len(texts))
	for i := range texts {
		entries[i] = domain.Entry{Vector: vecs[i], Meta: metas[i]}
	}
	return entries
}

func fixtureInfo(e port.Embedder, entries []domain.Entry, pubs []domain.PublicationRecord, buildID string) domain.IndexInfo {
	return domain.IndexInfo{
		BuildID:          buildID,
		Model:            e.ModelName(),
		Dimension:        e.Dimension(),
		ChunkCount:       len(entries),
		PublicationCount: len(pubs),
	}
}

func fixtureCorpus(t *testing.T, e port.Embedder, buildID string) *Corpus {
	t.Helper()
	entries := fixtureEntries(t, e, fixturePubs)
	c, err := NewCorpus(fixtureInfo(e, entries, fixturePubs, buildID), entries, fixturePubs)
	require.NoError(t, err)
	return c
}

type countingEmbedder struct {
	port.Embedder
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, texts)
}

func TestSearchReturnsExactlyK(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e, "b1"), Options{MinK: 1, MaxK: 50})
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "bone loss microgravity", 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "PMC100", results[0].PubID)
	assert.Equal(t, "Microgravity and the skeleton", results[0].PubTitle)
	assert.Equal(t, "2019", results[0].PubYear)
	assert.Equal(t, "Ortiz A", results[0].PubAuthors)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchClampsToCorpusSize(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e, "b1"), Options{MinK: 1, MaxK: 50})
	require.NoError(t, err)

	results, err := r.Search(context.Background(), "radiation", 50)
	require.NoError(t, err)
	assert.Len(t, results, 7)
}

func TestSearchRejectsInvalidInput(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e, "b1"), Options{MinK: 1, MaxK: 50})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		k     int
	}{
		{"empty query", "", 5},
		{"whitespace query", " \t\n", 5},
		{"k zero", "bone", 0},
		{"k negative", "bone", -3},
		{"k above max", "bone", 51},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Search(context.Background(), tt.query, tt.k)
			assert.ErrorIs(t, err, domain.ErrInvalidQuery)
		})
	}
}

func TestSearchWithoutCorpus(t *testing.T) {
	r, err := NewSemanticRetriever(embedding.NewHashEmbedder(testDim), nil, Options{})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "bone", 5)
	assert.ErrorIs(t, err, domain.ErrNoIndex)
}

func TestSearchReportsMisalignedMetadata(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	good := fixtureCorpus(t, e, "b1")

	// Hand-built corpus whose metadata is one entry short of the index.
	entries := fixtureEntries(t, e, fixturePubs)
	vectors := make([][]float32, len(entries))
	metas := make([]domain.ChunkMetadata, 0, len(entries))
	for i, en := range entries {
		vectors[i] = en.Vector
		if i < len(entries)-1 {
			metas = append(metas, en.Meta)
		}
	}
	index, err := vectorindex.Build(vectors)
	require.NoError(t, err)
	meta, err := memstore.NewMetadataStore(metas, fixturePubs)
	require.NoError(t, err)

	r, err := NewSemanticRetriever(e, &Corpus{Info: good.Info, Index: index, Meta: meta}, Options{MinK: 1, MaxK: 50})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "anything at all", 50)
	assert.ErrorIs(t, err, domain.ErrIndexCorruption)
}

func TestSearchPropagatesModelUnavailable(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	c := fixtureCorpus(t, e, "b1")

	srvDown := &downEmbedder{Embedder: e}
	r, err := NewSemanticRetriever(srvDown, c, Options{MinK: 1, MaxK: 50})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), "bone", 5)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

type downEmbedder struct {
	port.Embedder
}

func (downEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrModelUnavailable
}

func TestSearchUsesCacheUntilSwap(t *testing.T) {
	e := &countingEmbedder{Embedder: embedding.NewHashEmbedder(testDim)}
	qc := cache.NewQueryCache(10, time.Minute)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e.Embedder, "b1"), Options{MinK: 1, MaxK: 50, Cache: qc})
	require.NoError(t, err)

	first, err := r.Search(context.Background(), "root growth", 3)
	require.NoError(t, err)
	second, err := r.Search(context.Background(), "root growth", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), e.calls.Load())

	require.NoError(t, r.Swap(fixtureCorpus(t, e.Embedder, "b2")))
	assert.Equal(t, 0, qc.Size())

	_, err = r.Search(context.Background(), "root growth", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), e.calls.Load())
}

func TestSwapRejectsForeignModel(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e, "b1"), Options{})
	require.NoError(t, err)

	other := embedding.NewHashEmbedder(64)
	foreign := fixtureCorpus(t, other, "b2")
	err = r.Swap(foreign)
	assert.ErrorIs(t, err, domain.ErrIndexCorruption)
	assert.Equal(t, "b1", r.Corpus().Info.BuildID)

	_, err = NewSemanticRetriever(e, foreign, Options{})
	assert.ErrorIs(t, err, domain.ErrIndexCorruption)
}

func TestSearchDuringSwap(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	r, err := NewSemanticRetriever(e, fixtureCorpus(t, e, "b1"), Options{MinK: 1, MaxK: 50, Cache: cache.NewQueryCache(10, time.Minute)})
	require.NoError(t, err)
	next := fixtureCorpus(t, e, "b2")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				results, err := r.Search(context.Background(), "cardiac radiation", 5)
				assert.NoError(t, err)
				assert.Len(t, results, 5)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Swap(next))
	}
	wg.Wait()
}

func TestNewCorpusValidation(t *testing.T) {
	e := embedding.NewHashEmbedder(testDim)
	entries := fixtureEntries(t, e, fixturePubs)
	info := fixtureInfo(e, entries, fixturePubs, "b1")

	t.Run("count mismatch", func(t *testing.T) {
		bad := info
		bad.ChunkCount++
		_, err := NewCorpus(bad, entries, fixturePubs)
		assert.ErrorIs(t, err, domain.ErrIndexCorruption)
	})

	t.Run("publication count mismatch", func(t *testing.T) {
		bad := info
		bad.PublicationCount = 1
		_, err := NewCorpus(bad, entries, fixturePubs)
		assert.ErrorIs(t, err, domain.ErrIndexCorruption)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		bad := info
		bad.Dimension = 12
		_, err := NewCorpus(bad, entries, fixturePubs)
		assert.ErrorIs(t, err, domain.ErrIndexCorruption)
	})

	t.Run("unknown publication", func(t *testing.T) {
		pubs := fixturePubs[:3]
		bad := info
		bad.PublicationCount = 3
		_, err := NewCorpus(bad, entries, pubs)
		assert.ErrorIs(t, err, domain.ErrIndexCorruption)
	})

	t.Run("valid", func(t *testing.T) {
		c, err := NewCorpus(info, entries, fixturePubs)
		require.NoError(t, err)
		h := c.Health()
		assert.Equal(t, 7, h.Chunks)
		assert.Equal(t, 4, h.Publications)
		assert.Equal(t, embedding.HashModelName, h.Model)
	})
}
