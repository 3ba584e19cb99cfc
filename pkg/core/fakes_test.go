package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// fakeEmbedder returns canned vectors per text, so tests control
// similarity exactly.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	dims    int
	fail    bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{
		vectors: make(map[string][]float64),
		dims:    dims,
	}
}

func (e *fakeEmbedder) set(text string, vector []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vector
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return nil, fmt.Errorf("embedder down")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	// Unknown texts embed to a unit vector on the first axis.
	v := make([]float64, e.dims)
	v[0] = 1
	return v, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return e.dims }
func (e *fakeEmbedder) Close() error    { return nil }

// fakeStore is an in-memory storage.Store for exercising client logic
// without a database.
type fakeStore struct {
	mu        sync.Mutex
	memories  map[int64]*storage.Memory
	relations map[int64]*storage.Relation
	events    []*storage.AccessEvent
	nextRelID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:  make(map[int64]*storage.Memory),
		relations: make(map[int64]*storage.Relation),
	}
}

func copyMemory(m *storage.Memory) *storage.Memory {
	c := *m
	return &c
}

func (s *fakeStore) Insert(_ context.Context, memory *storage.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[memory.ID] = copyMemory(memory)
	return nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyMemory(m), nil
}

func (s *fakeStore) Search(_ context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var results []*storage.Memory
	for _, m := range s.memories {
		if m.DeletedAt != nil {
			continue
		}
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			continue
		}
		if opts.ExcludeID != 0 && m.ID == opts.ExcludeID {
			continue
		}
		if opts.Source != "" && m.Source != opts.Source {
			continue
		}
		if len(opts.Tags) > 0 && !hasAnyTag(m.Tags, opts.Tags) {
			continue
		}
		c := copyMemory(m)
		c.Similarity = cosine(embedding, m.Embedding)
		results = append(results, c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *fakeStore) Reinforce(_ context.Context, id int64, newImportance float64, now time.Time) (*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok || m.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	m.Importance = newImportance
	m.ReinforcementCount++
	t := now
	m.LastReinforcedAt = &t
	m.LastAccessedAt = &t
	return copyMemory(m), nil
}

func (s *fakeStore) SetImportance(_ context.Context, id int64, importance float64) (*storage.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok || m.DeletedAt != nil {
		return nil, storage.ErrNotFound
	}
	m.Importance = importance
	return copyMemory(m), nil
}

func (s *fakeStore) SoftDelete(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok || m.DeletedAt != nil {
		return 0, nil
	}
	now := time.Now()
	m.DeletedAt = &now
	return 1, nil
}

func (s *fakeStore) HardDelete(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[id]; !ok {
		return 0, nil
	}
	delete(s.memories, id)
	for rid, r := range s.relations {
		if r.SourceID == id || r.TargetID == id {
			delete(s.relations, rid)
		}
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if e.MemoryID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return 1, nil
}

func (s *fakeStore) ForgetByCriteria(ctx context.Context, criteria *storage.ForgetCriteria) (int64, error) {
	s.mu.Lock()
	var matched []int64
	cutoff := time.Now().AddDate(0, 0, -criteria.OlderThanDays)
	for _, m := range s.memories {
		if m.DeletedAt != nil {
			continue
		}
		if len(criteria.Tags) > 0 && !hasAnyTag(m.Tags, criteria.Tags) {
			continue
		}
		if criteria.OlderThanDays > 0 {
			anchor := m.CreatedAt
			if m.LastAccessedAt != nil {
				anchor = *m.LastAccessedAt
			}
			if !anchor.Before(cutoff) {
				continue
			}
		}
		if criteria.MaxImportance > 0 && m.Importance >= criteria.MaxImportance {
			continue
		}
		matched = append(matched, m.ID)
	}
	s.mu.Unlock()

	var affected int64
	for _, id := range matched {
		var n int64
		if criteria.Soft {
			n, _ = s.SoftDelete(ctx, id)
		} else {
			n, _ = s.HardDelete(ctx, id)
		}
		affected += n
	}
	return affected, nil
}

func (s *fakeStore) UpsertRelation(_ context.Context, relation *storage.Relation) (*storage.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.relations {
		if r.SourceID == relation.SourceID && r.TargetID == relation.TargetID && r.Type == relation.Type {
			r.Strength = relation.Strength
			r.Metadata = relation.Metadata
			r.UpdatedAt = relation.UpdatedAt
			c := *r
			return &c, nil
		}
	}
	s.nextRelID++
	stored := *relation
	stored.ID = s.nextRelID
	s.relations[stored.ID] = &stored
	c := stored
	return &c, nil
}

func (s *fakeStore) RelationsByMemory(_ context.Context, id int64, direction string) ([]*storage.Relation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*storage.Relation
	for _, r := range s.relations {
		var dir string
		var peerID int64
		switch {
		case r.SourceID == id && (direction == storage.DirectionOutgoing || direction == storage.DirectionBoth):
			dir, peerID = storage.DirectionOutgoing, r.TargetID
		case r.TargetID == id && (direction == storage.DirectionIncoming || direction == storage.DirectionBoth):
			dir, peerID = storage.DirectionIncoming, r.SourceID
		default:
			continue
		}
		peer, ok := s.memories[peerID]
		if !ok || peer.DeletedAt != nil {
			continue
		}
		c := *r
		c.Direction = dir
		c.PeerID = peerID
		c.PeerContent = peer.Content
		c.PeerSummary = peer.Summary
		results = append(results, &c)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (s *fakeStore) DeleteRelation(_ context.Context, sourceID, targetID int64, relationType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rid, r := range s.relations {
		if r.SourceID == sourceID && r.TargetID == targetID && r.Type == relationType {
			delete(s.relations, rid)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) RecordAccess(_ context.Context, events []*storage.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		m, ok := s.memories[e.MemoryID]
		if !ok {
			continue
		}
		s.events = append(s.events, e)
		m.AccessCount++
		t := e.CreatedAt
		m.LastAccessedAt = &t
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) accessEvents() []*storage.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*storage.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
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
