package index

import (
	"context"
	"math"
	"testing"

	"github.com/datalens-ai/datalens/internal/domain"
)

// fakeEmbedder is deterministic: the same text always maps to the same
// vector, and distinct texts are very unlikely to collide.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.calls++
	vec := make([]float32, 16)
	for i := 0; i < len(text); i++ {
		vec[(i+int(text[i]))%len(vec)] += float32(text[i])
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// constEmbedder maps every text to the same vector, so similarity ties
// across all records.
type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3}}, nil
}

func TestIndex_ExactMatchRanksFirst(t *testing.T) {
	ctx := context.Background()
	idx := New(&fakeEmbedder{}, NewMemoryStore())

	chunks := []string{
		"rank: 1 | title: Avatar | gross: 2923",
		"rank: 2 | title: Avengers Endgame | gross: 2799",
		"rank: 3 | title: Titanic | gross: 2264",
	}
	if err := idx.Rebuild(ctx, chunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got, err := idx.Query(ctx, chunks[1], 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0] != chunks[1] {
		t.Errorf("expected exact match first, got %q", got[0])
	}
}

func TestIndex_QueryEmptyIndex(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{}
	idx := New(emb, NewMemoryStore())

	got, err := idx.Query(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("Query on empty index: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedder calls on empty index, got %d", emb.calls)
	}
}

func TestIndex_RebuildEmptyClearsStore(t *testing.T) {
	ctx := context.Background()
	idx := New(&fakeEmbedder{}, NewMemoryStore())

	if err := idx.Rebuild(ctx, []string{"a: 1"}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := idx.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild empty: %v", err)
	}

	got, err := idx.Query(ctx, "a: 1", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result after clearing rebuild, got %v", got)
	}
}

func TestIndex_StoredVectorsAreUnitNorm(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	idx := New(&fakeEmbedder{}, store)

	if err := idx.Rebuild(ctx, []string{"x: 1", "y: 2", "z: 3"}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	recs, err := store.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	for _, rec := range recs {
		var sum float64
		for _, v := range rec.Vector {
			sum += float64(v) * float64(v)
		}
		if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
			t.Errorf("record %d: expected unit norm, got %f", rec.ID, norm)
		}
	}
}

func TestIndex_Deterministic(t *testing.T) {
	ctx := context.Background()
	idx := New(&fakeEmbedder{}, NewMemoryStore())

	chunks := []string{"a: 1", "b: 2", "c: 3", "d: 4"}
	if err := idx.Rebuild(ctx, chunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	first, err := idx.Query(ctx, "b: 2", 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	second, err := idx.Query(ctx, "b: 2", 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("result[%d] differs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestIndex_TiesBreakByChunkID(t *testing.T) {
	ctx := context.Background()
	idx := New(constEmbedder{}, NewMemoryStore())

	chunks := []string{"first", "second", "third"}
	if err := idx.Rebuild(ctx, chunks); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	got, err := idx.Query(ctx, "whatever", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for i, want := range chunks {
		if got[i] != want {
			t.Errorf("tie order: result[%d] = %q, want %q", i, got[i], want)
		}
	}
}

func TestIndex_TopKClamped(t *testing.T) {
	ctx := context.Background()
	idx := New(&fakeEmbedder{}, NewMemoryStore())

	if err := idx.Rebuild(ctx, []string{"only: chunk"}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	got, err := idx.Query(ctx, "only: chunk", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}
