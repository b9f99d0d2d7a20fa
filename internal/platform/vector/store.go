package vector

import "context"

// Store is the canonical-tag vector index. Implementations return
// similarity scores where higher is better; callers that need a distance
// use 1 - score (cosine).
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns the topK nearest entries with their payloads.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	// SetPayload merges the given payload keys into an existing entry.
	SetPayload(ctx context.Context, namespace string, id string, payload map[string]any) error
	// Scroll lists entries matching filter, paging internally up to limit.
	Scroll(ctx context.Context, namespace string, filter map[string]any, limit int) ([]Entry, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

type Entry struct {
	ID      string
	Payload map[string]any
}
