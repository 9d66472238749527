package dedup

import (
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/starford/laguz/internal/models"
)

var tokenRe = regexp.MustCompile(`[a-z0-9]{3,}`)

// Embedder maps a loop's features and content into a fixed-dimension
// vector by token feature hashing. The projection is deterministic: the
// same features always hash to the same vector.
type Embedder struct {
	dim int
}

// NewEmbedder creates an Embedder producing vectors of the given dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{dim: dim}
}

// Dim returns the embedding dimension.
func (e *Embedder) Dim() int { return e.dim }

// Embed produces the L2-normalized similarity vector for a loop.
// Extracted keywords and the category carry more weight than raw content
// tokens so near-identical loops with noisy boilerplate still converge.
func (e *Embedder) Embed(fs models.FeatureSet, content string) []float32 {
	vec := make([]float32, e.dim)

	add := func(token string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dim)] += weight
	}

	for _, kw := range fs.Keywords {
		add(kw, 3)
	}
	add("category:"+fs.PrimaryCategory, 2)
	for _, cat := range fs.SecondaryCategories {
		add("category:"+cat, 1)
	}
	if fs.HasCode {
		add("lang:"+fs.CodeLanguage, 2)
	}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(content), -1) {
		add(tok, 1)
	}

	return NormalizeL2(vec)
}
