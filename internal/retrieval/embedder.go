// ABOUTME: Embedder interface and the default hashed bag-of-words embedder
// ABOUTME: Deterministic local embeddings, no network dependency

package retrieval

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder converts text into a fixed-dimension vector. Implementations
// must be deterministic: the same text always yields the same vector.
type Embedder interface {
	Embed(text string) []float32
	Dimensions() int
}

// HashEmbedder is a hashed bag-of-words embedder. Each token is hashed
// into one of the vector's dimensions and the result is L2-normalized.
// It needs no model or network access, which keeps indexing and queries
// fully local and reproducible.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates an embedder producing vectors of the given
// dimension count.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector dimension count.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// Embed hashes each token into a dimension and L2-normalizes the counts.
// Empty or token-free text yields the zero vector.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
