// Package selection picks the best-suited agent for a query by comparing
// embeddings of agent descriptions against the query.
package selection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Document is one embeddable text record.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Match is a query result with its similarity score (higher is closer).
type Match struct {
	Document
	Score float64
}

// Embedder turns texts into vectors. Implementations typically call an
// embeddings API.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorStore stores documents and answers nearest-neighbour queries.
type VectorStore interface {
	AddData(ctx context.Context, docs []Document) error
	QueryData(ctx context.Context, text string, topK int) ([]Match, error)
}

// MemoryStore is an in-process VectorStore using cosine similarity. It is
// meant for small collections such as a handful of agents.
type MemoryStore struct {
	embedder Embedder

	mu   sync.RWMutex
	docs []Document
	vecs [][]float64
}

// NewMemoryStore creates an empty in-memory store backed by embedder.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

// AddData embeds and stores docs. A document with an ID already present
// replaces the stored one.
func (s *MemoryStore) AddData(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		if j := s.indexOf(d.ID); j >= 0 {
			s.docs[j] = d
			s.vecs[j] = vecs[i]
			continue
		}
		s.docs = append(s.docs, d)
		s.vecs = append(s.vecs, vecs[i])
	}
	return nil
}

// QueryData returns up to topK stored documents ranked by cosine similarity
// to text.
func (s *MemoryStore) QueryData(ctx context.Context, text string, topK int) ([]Match, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	query := vecs[0]

	s.mu.RLock()
	matches := make([]Match, 0, len(s.docs))
	for i, d := range s.docs {
		matches = append(matches, Match{Document: d, Score: cosine(query, s.vecs[i])})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryStore) indexOf(id string) int {
	for i, d := range s.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
