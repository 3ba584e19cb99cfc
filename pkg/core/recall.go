package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/engram-ai/engram-go/pkg/scoring"
	"github.com/engram-ai/engram-go/pkg/storage"
)

// Recall gathers memories relevant to a task, searching the task string
// and up to ten auxiliary context strings in one pass.
//
// All query strings are embedded in a single batch request. Each query
// searches an even share of the limit (plus headroom so dedup does not
// starve the merge), results are deduplicated keeping each memory's best
// hybrid score and the query that produced it, sorted by score
// descending, and truncated to the limit. Every recalled memory is
// recorded in the access ledger tagged with the task.
func (c *Client) Recall(ctx context.Context, task string, opts ...RecallOption) (*RecallResult, error) {
	options := &recallOptions{limit: DefaultRecallLimit}
	for _, opt := range opts {
		opt(options)
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, validationError("Recall", "task is empty")
	}
	if options.limit <= 0 {
		return nil, validationError("Recall", "limit must be positive")
	}
	minScore := DefaultRecallMinScore
	if options.hasMin {
		minScore = options.minScore
	}

	queries := buildQueries(task, options.contexts)

	embeddings, err := c.embedder.EmbedBatch(ctx, queries)
	if err != nil {
		return nil, dependencyError("Recall", err)
	}

	// Even share per query, with headroom so overlapping result sets
	// still fill the merged limit after deduplication.
	perQuery := (options.limit+len(queries)-1)/len(queries) + 5

	best := make(map[int64]*RecalledMemory)
	for i, embedding := range embeddings {
		candidates, err := c.store.Search(ctx, embedding, &storage.SearchOptions{
			Limit:  perQuery,
			Tags:   options.tags,
			Source: options.source,
		})
		if err != nil {
			return nil, NewMemoryError("Recall", err)
		}

		for _, sm := range candidates {
			m := fromStorageMemory(sm)
			m.Score = scoring.HybridScore(m.Similarity, m.recencyAnchor(), m.Importance, c.config.Scoring)
			if m.Score < minScore {
				continue
			}
			if existing, ok := best[m.ID]; ok && existing.Score >= m.Score {
				continue
			}
			best[m.ID] = &RecalledMemory{Memory: m, MatchedQuery: queries[i]}
		}
	}

	merged := make([]*RecalledMemory, 0, len(best))
	for _, m := range best {
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > options.limit {
		merged = merged[:options.limit]
	}

	c.recordRecall(merged, task)

	return &RecallResult{
		Task:     task,
		Queries:  queries,
		Memories: merged,
	}, nil
}

// buildQueries assembles the query list: the task first, then up to
// MaxRecallContexts non-empty, non-duplicate context strings.
func buildQueries(task string, contexts []string) []string {
	queries := []string{task}
	seen := map[string]bool{task: true}

	for _, c := range contexts {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if len(queries)-1 >= MaxRecallContexts {
			break
		}
		seen[c] = true
		queries = append(queries, c)
	}
	return queries
}

// recordRecall enqueues one recall access event per merged memory, all
// tagged with the task string rather than the sub-query that matched.
func (c *Client) recordRecall(memories []*RecalledMemory, task string) {
	if len(memories) == 0 {
		return
	}

	now := time.Now().UTC()
	events := make([]*storage.AccessEvent, len(memories))
	for i, m := range memories {
		events[i] = &storage.AccessEvent{
			ID:         c.node.Generate().Int64(),
			MemoryID:   m.ID,
			AccessType: storage.AccessRecall,
			Query:      task,
			Similarity: m.Similarity,
			CreatedAt:  now,
		}
	}
	c.ledger.record(events)
}
