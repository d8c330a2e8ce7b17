package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/datalens-ai/datalens/internal/domain"
)

// Index ties an embedder to a record store and answers top-k retrieval.
type Index struct {
	embed domain.Embedder
	store Store
}

// New creates an index over the given embedder and store.
func New(embed domain.Embedder, store Store) *Index {
	return &Index{embed: embed, store: store}
}

// Rebuild clears the store and re-embeds the given chunks. Chunk ids are
// positions in the input slice. An empty chunk set just clears the store
// so subsequent queries return nothing.
func (i *Index) Rebuild(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		if err := i.store.Replace(ctx, nil); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
		return nil
	}

	vectors, err := i.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	recs := make([]Record, len(chunks))
	for id, chunk := range chunks {
		recs[id] = Record{
			ID:     id,
			Text:   chunk,
			Vector: domain.Normalize(vectors[id]),
		}
	}

	if err := i.store.Replace(ctx, recs); err != nil {
		return fmt.Errorf("replace records: %w", err)
	}
	return nil
}

// embedAll vectorizes all chunks, in one call when the embedder supports
// batching.
func (i *Index) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	if be, ok := i.embed.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("batch embed chunks: %w", err)
		}
		if len(res.Embeddings) != len(chunks) {
			return nil, fmt.Errorf("batch embed returned %d vectors for %d chunks", len(res.Embeddings), len(chunks))
		}
		return res.Embeddings, nil
	}

	res, err := domain.BatchFallback(ctx, i.embed, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return res.Embeddings, nil
}

// Query embeds the question and returns the texts of the topK most
// similar records, ranked by descending cosine similarity with ties
// broken by ascending chunk id. An empty index yields an empty result
// without calling the embedder.
func (i *Index) Query(ctx context.Context, text string, topK int) ([]string, error) {
	recs, err := i.store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	if len(recs) == 0 || topK <= 0 {
		return nil, nil
	}

	res, err := i.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := domain.Normalize(res.Embedding)

	type scored struct {
		rec   Record
		score float64
	}
	ranked := make([]scored, len(recs))
	for n, rec := range recs {
		ranked[n] = scored{rec: rec, score: domain.Dot(query, rec.Vector)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].rec.ID < ranked[b].rec.ID
	})

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]string, topK)
	for n := 0; n < topK; n++ {
		out[n] = ranked[n].rec.Text
	}
	return out, nil
}
