package identity

import (
	"math"
	"testing"
)

// unitVec builds a unit vector in dim dimensions with cosine similarity
// `cos` to the first basis vector. Handy for constructing stores with
// exactly known similarities.
func unitVec(dim int, cos float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func basisVec(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestNewSnapshot_Empty(t *testing.T) {
	s, err := NewSnapshot(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !s.Empty() {
		t.Error("expected empty snapshot")
	}
	if s.Len() != 0 {
		t.Errorf("expected length 0, got %d", s.Len())
	}
	if _, ok := s.Nearest(basisVec(4, 0)); ok {
		t.Error("expected no neighbor from empty snapshot")
	}
}

func TestNewSnapshot_DuplicateCode(t *testing.T) {
	_, err := NewSnapshot([]Identity{
		{Code: "emp-1", Embeddings: [][]float32{basisVec(4, 0)}},
		{Code: "emp-1", Embeddings: [][]float32{basisVec(4, 1)}},
	})
	if err == nil {
		t.Fatal("expected error for duplicate identity code")
	}
}

func TestNewSnapshot_DimMismatch(t *testing.T) {
	_, err := NewSnapshot([]Identity{
		{Code: "emp-1", Embeddings: [][]float32{{1, 0, 0}}},
		{Code: "emp-2", Embeddings: [][]float32{{1, 0, 0, 0}}},
	})
	if err == nil {
		t.Fatal("expected error for mixed embedding dimensions")
	}
}

func TestSnapshot_NearestPicksGlobalMax(t *testing.T) {
	s, err := NewSnapshot([]Identity{
		{Code: "alice", Embeddings: [][]float32{unitVec(8, 0.91)}},
		{Code: "bob", Embeddings: [][]float32{unitVec(8, 0.62)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := s.Nearest(basisVec(8, 0))
	if !ok {
		t.Fatal("expected a neighbor")
	}
	if got.Code != "alice" {
		t.Errorf("expected alice, got %s", got.Code)
	}
	if math.Abs(got.Similarity-0.91) > 1e-5 {
		t.Errorf("expected similarity 0.91, got %f", got.Similarity)
	}
}

func TestSnapshot_NearestReducesPerIdentityFirst(t *testing.T) {
	// bob holds both the single worst and the single best embedding; his
	// per-identity max must win even though alice's only embedding beats
	// bob's weaker one.
	s, err := NewSnapshot([]Identity{
		{Code: "alice", Embeddings: [][]float32{unitVec(8, 0.70)}},
		{Code: "bob", Embeddings: [][]float32{unitVec(8, 0.20), unitVec(8, 0.95)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := s.Nearest(basisVec(8, 0))
	if !ok {
		t.Fatal("expected a neighbor")
	}
	if got.Code != "bob" {
		t.Errorf("expected bob, got %s", got.Code)
	}
	if math.Abs(got.Similarity-0.95) > 1e-5 {
		t.Errorf("expected similarity 0.95, got %f", got.Similarity)
	}
}

func TestSnapshot_SkipsEmptyEmbeddings(t *testing.T) {
	s, err := NewSnapshot([]Identity{
		{Code: "alice", Embeddings: [][]float32{nil, unitVec(4, 0.9), {}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Len() != 1 {
		t.Errorf("expected 1 stored embedding, got %d", s.Len())
	}
}

func TestSnapshot_Get(t *testing.T) {
	s, err := NewSnapshot([]Identity{
		{Code: "emp-7", Embeddings: [][]float32{basisVec(4, 0)}, Mean: basisVec(4, 0)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.Get("emp-7"); got == nil || got.Code != "emp-7" {
		t.Errorf("expected emp-7, got %+v", got)
	}
	if got := s.Get("stranger"); got != nil {
		t.Errorf("expected nil for unknown code, got %+v", got)
	}
}

func TestStore_SwapPublishes(t *testing.T) {
	st := NewStore()
	if !st.Current().Empty() {
		t.Fatal("expected fresh store to hold an empty snapshot")
	}

	next, err := NewSnapshot([]Identity{
		{Code: "alice", Embeddings: [][]float32{basisVec(4, 0)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	old := st.Swap(next)
	if !old.Empty() {
		t.Error("expected the previous snapshot back from Swap")
	}
	if st.Current().Len() != 1 {
		t.Errorf("expected published snapshot with 1 embedding, got %d", st.Current().Len())
	}
}

func TestStore_SwapNilInstallsEmpty(t *testing.T) {
	st := NewStore()
	st.Swap(nil)

	if st.Current() == nil {
		t.Fatal("expected non-nil snapshot after nil swap")
	}
	if !st.Current().Empty() {
		t.Error("expected empty snapshot after nil swap")
	}
}

func TestStore_ConcurrentReadsDuringSwap(t *testing.T) {
	st := NewStore()
	snapA, _ := NewSnapshot([]Identity{{Code: "a", Embeddings: [][]float32{basisVec(4, 0)}}})
	snapB, _ := NewSnapshot([]Identity{{Code: "b", Embeddings: [][]float32{basisVec(4, 1)}}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				st.Swap(snapA)
			} else {
				st.Swap(snapB)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		s := st.Current()
		if s == nil {
			t.Fatal("reader observed nil snapshot")
		}
		// Whatever snapshot we see must be internally consistent.
		if !s.Empty() && s.Len() != 1 {
			t.Fatalf("reader observed torn snapshot with length %d", s.Len())
		}
	}
	<-done
}
