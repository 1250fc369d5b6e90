package vectorindex

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func TestSearchSelfRetrieval(t *testing.T) {
	vectors := randomVectors(200, 16, 1)
	idx, err := Build(vectors)
	require.NoError(t, err)

	for i, v := range vectors {
		hits, err := idx.Search(v, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, i, hits[0].Position)
		assert.InDelta(t, 0, hits[0].Distance, 1e-9)
	}
}

func TestSearchMatchesBruteForce(t *testing.T) {
	vectors := randomVectors(300, 8, 2)
	idx, err := Build(vectors)
	require.NoError(t, err)

	query := randomVectors(1, 8, 3)[0]
	hits, err := idx.Search(query, 10)
	require.NoError(t, err)

	type scored struct {
		pos  int
		dist float64
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		var sum float64
		for j := range v {
			d := float64(v[j]) - float64(query[j])
			sum += d * d
		}
		all[i] = scored{i, math.Sqrt(sum)}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	for i, h := range hits {
		assert.Equal(t, all[i].pos, h.Position)
		assert.InDelta(t, all[i].dist, h.Distance, 1e-9)
	}
}

func TestSearchPrefixProperty(t *testing.T) {
	vectors := randomVectors(100, 12, 4)
	idx, err := Build(vectors)
	require.NoError(t, err)
	query := randomVectors(1, 12, 5)[0]

	full, err := idx.Search(query, 50)
	require.NoError(t, err)
	for k := 1; k < 50; k++ {
		part, err := idx.Search(query, k)
		require.NoError(t, err)
		assert.Equal(t, full[:k], part, "k=%d is not a prefix", k)
	}
}

func TestSearchAscendingAndTieBreak(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0, 1},
		{-1, 0},
		{0, -1},
		{0, 0},
		{1, 0},
	}
	idx, err := Build(vectors)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 6)
	require.NoError(t, err)

	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Position
		if i > 0 {
			assert.LessOrEqual(t, hits[i-1].Distance, h.Distance)
		}
	}
	// Origin first, then the five unit vectors in position order.
	assert.Equal(t, []int{4, 0, 1, 2, 3, 5}, positions)

	hits, err = idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, 5, hits[1].Position)
}

func TestSearchClampsK(t *testing.T) {
	idx, err := Build(randomVectors(3, 4, 6))
	require.NoError(t, err)

	hits, err := idx.Search(make([]float32, 4), 50)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearchRejectsBadInput(t *testing.T) {
	idx, err := Build(randomVectors(3, 4, 7))
	require.NoError(t, err)

	_, err = idx.Search(make([]float32, 4), 0)
	assert.Error(t, err)

	_, err = idx.Search(make([]float32, 5), 1)
	assert.Error(t, err)
}

func TestEmptyIndex(t *testing.T) {
	idx, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())

	hits, err := idx.Search([]float32{1, 2}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuildRejectsMixedDimensions(t *testing.T) {
	_, err := Build([][]float32{{1, 2}, {1, 2, 3}})
	assert.Error(t, err)

	_, err = Build([][]float32{{}})
	assert.Error(t, err)
}

func TestBuildCopiesInput(t *testing.T) {
	vectors := [][]float32{{1, 2}, {3, 4}}
	idx, err := Build(vectors)
	require.NoError(t, err)

	vectors[0][0] = 99
	assert.Equal(t, []float32{1, 2}, idx.Vector(0))
	assert.Equal(t, 2, idx.Dimension())
}
