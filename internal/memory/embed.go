// Package memory stores hash-bucket embeddings of debate arguments in Redis
// so the judging pipeline can retrieve similar prior arguments as related
// material. The store is optional; a nil Store is skipped everywhere.
package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Dimensions is the embedding vector size.
const Dimensions = 64

// Embed maps text to a normalized bag-of-tokens vector: each lowercase token
// is hashed into one of 64 buckets and counted, then the vector is
// L2-normalized. Deterministic and dependency-free on purpose.
func Embed(text string) []float32 {
	vector := make([]float32, Dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		digest := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint16(digest[:2]) % Dimensions
		vector[bucket]++
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}

// Cosine returns the cosine similarity of two equal-length vectors.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
