package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Entry is a document with its embedding.
type Entry struct {
	Document Document
	Vector   []float32
	Model    string
}

type Hit struct {
	Document Document
	Score    float64
}

// Index stores entries and ranks them against a query vector.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Documents(ctx context.Context) ([]Document, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, 0 when either has zero
// magnitude.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// rank scores entries against query and returns the best k, skipping entries
// whose dimension does not match.
func rank(query []float32, entries []Entry, k int) []Hit {
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		score, err := Cosine(query, e.Vector)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{Document: e.Document, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].Document.ID < hits[j].Document.ID
		}
		return hits[i].Score > hits[j].Score
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

type MemoryIndex struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

var _ Index = &MemoryIndex{}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: map[string]Entry{}}
}

func (m *MemoryIndex) Upsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Document.ID == "" {
			return errors.New("memory index: document id is empty")
		}
		if _, ok := m.entries[e.Document.ID]; !ok {
			m.order = append(m.order, e.Document.ID)
		}
		e.Vector = append([]float32(nil), e.Vector...)
		m.entries[e.Document.ID] = e
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		entries = append(entries, m.entries[id])
	}
	return rank(query, entries, k), nil
}

func (m *MemoryIndex) Documents(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id].Document)
	}
	return out, nil
}

func (m *MemoryIndex) Close() error { return nil }
