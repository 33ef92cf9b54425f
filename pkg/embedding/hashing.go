package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashingClient is a local embedder based on the hashing trick: every token and
// adjacent token pair is hashed (seeded with the model id) into a signed bucket,
// and the result is L2-normalised. Vectors are deterministic for a given model.
type hashingClient struct {
	modelID string
	dims    int
}

// NewHashingClient returns a deterministic, dependency-free embedder.
func NewHashingClient(modelID string, dims int) Client {
	if dims <= 0 {
		dims = 256
	}
	return &hashingClient{modelID: modelID, dims: dims}
}

func (h *hashingClient) Model() string {
	return h.modelID
}

func (h *hashingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, h.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *hashingClient) add(vec []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(h.modelID))
	_, _ = f.Write([]byte{0})
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
