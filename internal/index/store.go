// Package index embeds text chunks and serves cosine-similarity top-k
// retrieval over a replaceable record store. The store holds at most one
// request's chunk set; every rebuild replaces it wholesale.
package index

import "context"

// Record is one embedded chunk. ID is the chunk's position in the
// rebuild input sequence; Vector is unit-normalized.
type Record struct {
	ID     int
	Text   string
	Vector []float32
}

// Store persists the current request's embedding records.
// Replace drops all prior records and writes the given set atomically
// with respect to Records; Records returns the full current set.
type Store interface {
	Replace(ctx context.Context, recs []Record) error
	Records(ctx context.Context) ([]Record, error)
}
