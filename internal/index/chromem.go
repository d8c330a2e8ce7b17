package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const chromemCollection = "request_chunks"

// ChromemStore persists the current record set in an embedded chromem-go
// database on local disk. The collection is dropped and recreated on
// every rebuild; the on-disk form is a transient artifact, not an API
// contract, so reads are served from an in-process mirror of the last
// Replace.
type ChromemStore struct {
	db *chromem.DB

	mu     sync.RWMutex
	mirror []Record
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore opens (or creates) a persistent chromem database at path.
func NewChromemStore(path string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &ChromemStore{db: db}, nil
}

// noEmbed guards the collection against implicit embedding calls: every
// document arrives with a precomputed vector.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// Replace truncates the on-disk collection and rewrites it.
func (s *ChromemStore) Replace(ctx context.Context, recs []Record) error {
	// DeleteCollection is a no-op error when the collection is absent.
	_ = s.db.DeleteCollection(chromemCollection)

	s.mu.Lock()
	s.mirror = nil
	s.mu.Unlock()

	if len(recs) == 0 {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(chromemCollection, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(recs))
	for i, rec := range recs {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(rec.ID),
			Content:   rec.Text,
			Embedding: rec.Vector,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	cp := make([]Record, len(recs))
	copy(cp, recs)

	s.mu.Lock()
	s.mirror = cp
	s.mu.Unlock()
	return nil
}

// Records returns the record set of the last Replace.
func (s *ChromemStore) Records(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.mirror))
	copy(out, s.mirror)
	return out, nil
}
