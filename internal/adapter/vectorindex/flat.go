package vectorindex

import (
	"container/heap"
	"fmt"
	"math"

	"pubsearch/internal/domain"
)

// Flat is an exact L2 nearest-neighbor index over a fixed set of vectors.
// Vectors are stored contiguously; position i is the i-th vector given to Build.
// A Flat is never modified after Build and is safe for concurrent searches.
type Flat struct {
	dimension int
	size      int
	data      []float32
}

// Build copies vectors into a new index. All vectors must share one dimension.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return &Flat{}, nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("vector 0 is empty")
	}

	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		data = append(data, v...)
	}

	return &Flat{dimension: dim, size: len(vectors), data: data}, nil
}

// Size returns the number of indexed vectors.
func (f *Flat) Size() int { return f.size }

// Dimension returns the vector dimension, or 0 for an empty index.
func (f *Flat) Dimension() int { return f.dimension }

// Vector returns a copy of the vector at position i.
func (f *Flat) Vector(i int) []float32 {
	out := make([]float32, f.dimension)
	copy(out, f.data[i*f.dimension:(i+1)*f.dimension])
	return out
}

// Search returns the k nearest vectors to query by Euclidean distance, nearest
// first. Equal distances are ordered by position. k larger than the index is
// clamped to the index size.
func (f *Flat) Search(query []float32, k int) ([]domain.Neighbor, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if f.size == 0 {
		return nil, nil
	}
	if len(query) != f.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", f.dimension, len(query))
	}
	if k > f.size {
		k = f.size
	}

	// Max-heap of the best k seen so far; the root is the worst kept candidate.
	h := make(candidateHeap, 0, k+1)
	for pos := 0; pos < f.size; pos++ {
		d := f.squaredDistance(query, pos)
		if len(h) < k {
			heap.Push(&h, domain.Neighbor{Position: pos, Distance: d})
			continue
		}
		if less(domain.Neighbor{Position: pos, Distance: d}, h[0]) {
			h[0] = domain.Neighbor{Position: pos, Distance: d}
			heap.Fix(&h, 0)
		}
	}

	out := make([]domain.Neighbor, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		n := heap.Pop(&h).(domain.Neighbor)
		n.Distance = math.Sqrt(n.Distance)
		out[i] = n
	}
	return out, nil
}

func (f *Flat) squaredDistance(query []float32, pos int) float64 {
	row := f.data[pos*f.dimension : (pos+1)*f.dimension]
	var sum float64
	for i, q := range query {
		d := float64(q) - float64(row[i])
		sum += d * d
	}
	return sum
}

// less orders neighbors by distance, then position.
func less(a, b domain.Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Position < b.Position
}

type candidateHeap []domain.Neighbor

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return less(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(domain.Neighbor)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
