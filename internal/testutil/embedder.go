package testutil

import (
	"context"
	"hash/fnv"
)

// FakeEmbedder produces deterministic vectors without any network call.
// Identical texts always map to identical vectors, so similarity ranking
// is stable across test runs.
type FakeEmbedder struct {
	Dim int
	Err error
}

// Embed returns one Dim-wide vector per text, derived from a hash of the
// text.
func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := h.Sum32()

		vec := make([]float32, f.Dim)
		for j := range vec {
			seed = seed*1664525 + 1013904223
			vec[j] = float32(seed%1000)/1000.0 - 0.5
		}
		out[i] = vec
	}
	return out, nil
}
