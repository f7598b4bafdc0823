package memory

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

// fakeEmbedder maps known phrases onto fixed unit vectors so similarity is
// deterministic without a network call
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) Dim() int     { return 3 }
func (f *fakeEmbedder) Name() string { return "fake" }

func newTestStore(t *testing.T, emb EmbeddingProvider) *VectorStore {
	t.Helper()
	s, err := NewVectorStore(filepath.Join(t.TempDir(), "vectors.db"), emb, Config{})
	if err != nil {
		t.Fatalf("NewVectorStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorStoreInsertAndSearch(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"cats are great":       {1, 0, 0},
		"dogs are loyal":       {0.9, 0.1, 0},
		"the meeting is at 3":  {0, 1, 0},
		"tell me about cats":   {1, 0, 0},
	}}
	s := newTestStore(t, emb)
	ctx := context.Background()

	for _, text := range []string{"cats are great", "dogs are loyal", "the meeting is at 3"} {
		id, err := s.Insert(ctx, "s1", text, "turn")
		if err != nil {
			t.Fatalf("Insert(%q) failed: %v", text, err)
		}
		if id == "" {
			t.Error("Insert should return an id")
		}
	}

	results, err := s.Search(ctx, "tell me about cats", 2, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Entry.Text != "cats are great" {
		t.Errorf("Best match should be the cats entry, got %q", results[0].Entry.Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("Results must be sorted by descending score")
	}
}

func TestVectorStoreMinScoreFilter(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"unrelated fact": {0, 1, 0},
		"the query":      {1, 0, 0},
	}}
	s := newTestStore(t, emb)
	ctx := context.Background()

	if _, err := s.Insert(ctx, "s1", "unrelated fact", "turn"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := s.Search(ctx, "the query", 5, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Orthogonal entries must be filtered, got %d results", len(results))
	}
}

func TestVectorStoreCount(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Insert(ctx, "s1", "entry", "turn"); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 entries, got %d", n)
	}
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out := deserializeVector(serializeVector(in))
	if len(out) != len(in) {
		t.Fatalf("Length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("Element %d: %v != %v", i, in[i], out[i])
		}
	}

	if deserializeVector([]byte{1, 2, 3}) != nil {
		t.Error("Truncated blob should deserialize to nil")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if got := cosineSimilarity(a, b); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("Identical vectors should score 1, got %v", got)
	}
	if got := cosineSimilarity(a, c); math.Abs(float64(got)) > 1e-6 {
		t.Errorf("Orthogonal vectors should score 0, got %v", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("Zero vector should score 0, got %v", got)
	}
}

func TestNormalizeVector(t *testing.T) {
	v := []float32{3, 4, 0}
	normalizeVector(v)
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("Expected unit norm, got %v", norm)
	}

	zero := []float32{0, 0}
	normalizeVector(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("Zero vector must stay zero")
	}
}
