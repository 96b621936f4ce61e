package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic, offline embedding backend built on
// signed feature hashing of lower-cased word tokens. Texts sharing words
// get similar vectors. It needs no model server, which makes it the
// backend for tests and air-gapped demos.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder producing vectors of dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dimension: dimension}
}

// Embed never fails except on a cancelled context. Text with no word
// tokens yields the zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, h.dimension)
	if h.dimension == 0 {
		return v, nil
	}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimension))
		if sum>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return v, nil
}

// GetModel returns "hash".
func (h *HashEmbedder) GetModel() string { return "hash" }

var _ EmbeddingGenerator = (*HashEmbedder)(nil)
