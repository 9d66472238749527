package dedup

import (
	"sync"
)

// Neighbor is a nearest-neighbor hit from the similarity index.
type Neighbor struct {
	LoopID     string
	Similarity float64
}

// SimilarityIndex is the external contract of the vector index: concurrent
// nearest-neighbor queries plus inserts of approved loops. Implementations
// may be replaced (e.g. by an ANN store) without touching the detector.
type SimilarityIndex interface {
	Nearest(vec []float32) (Neighbor, bool, error)
	Insert(loopID string, vec []float32) error
	Len() int
}

// MemoryIndex is a brute-force in-memory SimilarityIndex. Reads run
// concurrently under a read lock; inserts are serialized. Suitable for the
// index sizes the pipeline sees today.
type MemoryIndex struct {
	dim int

	mu      sync.RWMutex
	ids     []string
	vectors [][]float32
}

// Verify MemoryIndex satisfies SimilarityIndex at compile time.
var _ SimilarityIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim}
}

// Nearest returns the most similar indexed vector, or found=false when the
// index is empty.
func (ix *MemoryIndex) Nearest(vec []float32) (Neighbor, bool, error) {
	if len(vec) != ix.dim {
		return Neighbor{}, false, ErrVectorLengthMismatch
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := Neighbor{Similarity: -1}
	for i, v := range ix.vectors {
		sim, err := Cosine(vec, v)
		if err != nil {
			return Neighbor{}, false, err
		}
		if sim > best.Similarity {
			best = Neighbor{LoopID: ix.ids[i], Similarity: sim}
		}
	}
	if best.Similarity < 0 {
		return Neighbor{}, false, nil
	}
	return best, true, nil
}

// Insert adds an approved loop's vector. Re-inserting a known loop id
// replaces its vector.
func (ix *MemoryIndex) Insert(loopID string, vec []float32) error {
	if len(vec) != ix.dim {
		return ErrVectorLengthMismatch
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i, id := range ix.ids {
		if id == loopID {
			ix.vectors[i] = vec
			return nil
		}
	}
	ix.ids = append(ix.ids, loopID)
	ix.vectors = append(ix.vectors, vec)
	return nil
}

// Len returns the number of indexed loops.
func (ix *MemoryIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}
