package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"pubsearch/internal/adapter/analyzer"
)

// HashModelName identifies the feature-hashing model in index descriptors.
const HashModelName = "hash-v1"

// HashEmbedder is an in-process embedder that hashes terms and term pairs into a
// fixed number of buckets and L2-normalizes the result. It needs no model files
// or network, is deterministic, and is safe for concurrent use.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = e.embedOne(text)
	}
	return embeddings, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float64, e.dimension)
	for _, feature := range e.tokenizer.Features(text) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return HashModelName
}
