// Package identity holds the known-employee embedding registry used by the
// matching engine: an immutable snapshot of every enrolled identity's
// embedding set, indexed for nearest-neighbor search, plus the trained
// classifier over the same identities.
package identity

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coder/hnsw"
)

// HNSW index parameters for face embeddings.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// nearestSearchLimit caps how many graph candidates a nearest-identity
	// query examines before the per-identity reduction.
	nearestSearchLimit = 64
)

// Identity is one enrolled employee's embedding set.
type Identity struct {
	Code       string
	Embeddings [][]float32
	Mean       []float32
}

// Neighbor is a single stored embedding returned by a snapshot search.
type Neighbor struct {
	Code       string
	Similarity float64
}

// Snapshot is an immutable view of the identity registry. It is built once
// and then only read; reloads after enrollment changes build a fresh
// snapshot and swap it into the Store as a whole.
type Snapshot struct {
	identities []Identity
	byCode     map[string]*Identity
	graph      *hnsw.Graph[int64]
	nodeCode   map[int64]string
	dim        int
	count      int

	// The graph structure is read-only after build, but searches share
	// internal scratch state defensively behind a read lock.
	mu sync.RWMutex
}

// NewSnapshot builds a searchable snapshot from enrolled identities.
// Identities are ordered by code so graph construction is reproducible.
// Embeddings with a dimensionality different from the first one seen are
// rejected, since mixed model versions cannot be compared.
func NewSnapshot(identities []Identity) (*Snapshot, error) {
	s := &Snapshot{
		byCode:   make(map[string]*Identity, len(identities)),
		nodeCode: make(map[int64]string),
	}

	s.identities = make([]Identity, len(identities))
	copy(s.identities, identities)
	sort.Slice(s.identities, func(i, j int) bool {
		return s.identities[i].Code < s.identities[j].Code
	})

	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance

	var nodeID int64
	for i := range s.identities {
		ident := &s.identities[i]
		if ident.Code == "" {
			return nil, fmt.Errorf("identity %d has an empty code", i)
		}
		if _, dup := s.byCode[ident.Code]; dup {
			return nil, fmt.Errorf("duplicate identity code %q", ident.Code)
		}
		s.byCode[ident.Code] = ident

		for _, emb := range ident.Embeddings {
			if len(emb) == 0 {
				continue
			}
			if s.dim == 0 {
				s.dim = len(emb)
			}
			if len(emb) != s.dim {
				return nil, fmt.Errorf("identity %q: embedding dim %d, index dim %d", ident.Code, len(emb), s.dim)
			}

			g.Add(hnsw.MakeNode(nodeID, emb))
			s.nodeCode[nodeID] = ident.Code
			nodeID++
			s.count++
		}
	}

	if s.count > 0 {
		s.graph = g
	}
	return s, nil
}

// Empty reports whether the snapshot holds no embeddings at all.
func (s *Snapshot) Empty() bool {
	return s == nil || s.count == 0
}

// Len returns the number of stored embeddings.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Dim returns the embedding dimensionality, 0 when empty.
func (s *Snapshot) Dim() int {
	if s == nil {
		return 0
	}
	return s.dim
}

// Identities returns the enrolled identities in code order.
func (s *Snapshot) Identities() []Identity {
	if s == nil {
		return nil
	}
	return s.identities
}

// Get returns the identity for a code, or nil when unknown.
func (s *Snapshot) Get(code string) *Identity {
	if s == nil {
		return nil
	}
	return s.byCode[code]
}

// Nearest returns the best-matching identity for the query embedding:
// the graph candidates are reduced to a per-identity maximum similarity
// first, then the global maximum across identities wins. Similarities are
// recomputed exactly on the candidate vectors. Returns ok=false when the
// snapshot is empty.
func (s *Snapshot) Nearest(query []float32) (Neighbor, bool) {
	if s.Empty() || len(query) == 0 {
		return Neighbor{}, false
	}

	k := s.count
	if k > nearestSearchLimit {
		k = nearestSearchLimit
	}

	s.mu.RLock()
	nodes := s.graph.Search(query, k)
	s.mu.RUnlock()

	if len(nodes) == 0 {
		return Neighbor{}, false
	}

	perIdentity := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		code := s.nodeCode[n.Key]
		sim := CosineSimilarity(query, n.Value)
		if best, seen := perIdentity[code]; !seen || sim > best {
			perIdentity[code] = sim
		}
	}

	best := Neighbor{Similarity: -2}
	for code, sim := range perIdentity {
		if sim > best.Similarity || (sim == best.Similarity && code < best.Code) {
			best = Neighbor{Code: code, Similarity: sim}
		}
	}
	return best, true
}

// Store publishes the current snapshot to concurrent readers. Reloads
// replace the snapshot pointer atomically so an in-flight match never
// observes a half-updated registry.
type Store struct {
	snapshot atomic.Pointer[Snapshot]
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	st := &Store{}
	empty, _ := NewSnapshot(nil)
	st.snapshot.Store(empty)
	return st
}

// Current returns the live snapshot. Never nil.
func (st *Store) Current() *Snapshot {
	return st.snapshot.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (st *Store) Swap(s *Snapshot) *Snapshot {
	if s == nil {
		s, _ = NewSnapshot(nil)
	}
	return st.snapshot.Swap(s)
}
