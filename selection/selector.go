package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/skosovsky/agenty"
)

// ErrNoAgents is returned by Best when the selector holds no agents.
var ErrNoAgents = errors.New("no agents registered for selection")

// Selector routes queries to the agent whose description best matches.
type Selector struct {
	store  VectorStore
	agents map[string]*agenty.Agent
}

// NewSelector creates a Selector over store.
func NewSelector(store VectorStore) *Selector {
	return &Selector{store: store, agents: make(map[string]*agenty.Agent)}
}

// Add indexes agents by their name and description. An agent added twice
// replaces its earlier entry.
func (s *Selector) Add(ctx context.Context, agents ...*agenty.Agent) error {
	docs := make([]Document, 0, len(agents))
	for _, a := range agents {
		docs = append(docs, Document{
			ID:   a.ObjectID(),
			Text: a.Name() + ": " + a.Description(),
		})
		s.agents[a.ObjectID()] = a
	}
	return s.store.AddData(ctx, docs)
}

// Best returns the agent most similar to query, or ErrNoAgents.
func (s *Selector) Best(ctx context.Context, query string) (*agenty.Agent, error) {
	if len(s.agents) == 0 {
		return nil, ErrNoAgents
	}
	matches, err := s.store.QueryData(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoAgents
	}
	a, ok := s.agents[matches[0].ID]
	if !ok {
		return nil, fmt.Errorf("store returned unknown agent id %q", matches[0].ID)
	}
	return a, nil
}

// Rank returns up to topK agents ordered by similarity to query.
func (s *Selector) Rank(ctx context.Context, query string, topK int) ([]*agenty.Agent, error) {
	if len(s.agents) == 0 {
		return nil, ErrNoAgents
	}
	matches, err := s.store.QueryData(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]*agenty.Agent, 0, len(matches))
	for _, m := range matches {
		if a, ok := s.agents[m.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
