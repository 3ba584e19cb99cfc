package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/storage"
)

func TestRecallMergesAndDeduplicates(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	// "shared" is similar to both queries but closest to the context;
	// dedup must keep the higher-scoring match.
	emb.set("fix the login timeout", []float64{1, 0, 0})
	emb.set("auth service errors", []float64{0, 1, 0})
	emb.set("shared", []float64{0.3, 0.95393920141, 0})
	emb.set("task only", []float64{1, 0, 0})

	shared, err := client.Add(ctx, "shared")
	require.NoError(t, err)
	taskOnly, err := client.Add(ctx, "task only")
	require.NoError(t, err)

	result, err := client.Recall(ctx, "fix the login timeout",
		WithContexts("auth service errors"),
		WithRecallMinScore(0))
	require.NoError(t, err)

	assert.Equal(t, "fix the login timeout", result.Task)
	assert.Equal(t, []string{"fix the login timeout", "auth service errors"}, result.Queries)
	require.Len(t, result.Memories, 2)

	byID := make(map[int64]*RecalledMemory)
	for _, m := range result.Memories {
		byID[m.ID] = m
	}
	require.Contains(t, byID, shared.ID)
	require.Contains(t, byID, taskOnly.ID)
	assert.Equal(t, "auth service errors", byID[shared.ID].MatchedQuery)
	assert.Equal(t, "fix the login timeout", byID[taskOnly.ID].MatchedQuery)

	// Sorted by hybrid score descending.
	for i := 1; i < len(result.Memories); i++ {
		assert.GreaterOrEqual(t, result.Memories[i-1].Score, result.Memories[i].Score)
	}
}

func TestRecallTruncatesToLimit(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("query", []float64{1, 0, 0})
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("note %d", i)
		emb.set(content, []float64{1, 0, 0})
		_, err := client.Add(ctx, content)
		require.NoError(t, err)
	}

	result, err := client.Recall(ctx, "query", WithRecallLimit(3), WithRecallMinScore(0))
	require.NoError(t, err)
	assert.Len(t, result.Memories, 3)
}

func TestRecallCapsContexts(t *testing.T) {
	client, _, _ := newTestClient(t)

	contexts := make([]string, 15)
	for i := range contexts {
		contexts[i] = fmt.Sprintf("context %d", i)
	}

	result, err := client.Recall(context.Background(), "the task", WithContexts(contexts...))
	require.NoError(t, err)
	assert.Len(t, result.Queries, 1+MaxRecallContexts)
	assert.Equal(t, "the task", result.Queries[0])
}

func TestRecallSkipsBlankAndDuplicateContexts(t *testing.T) {
	client, _, _ := newTestClient(t)

	result, err := client.Recall(context.Background(), "the task",
		WithContexts("", "  ", "one", "one", "the task"))
	require.NoError(t, err)
	assert.Equal(t, []string{"the task", "one"}, result.Queries)
}

func TestRecallRecordsTaskTaggedEvents(t *testing.T) {
	client, store, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("deploy checklist", []float64{1, 0, 0})
	emb.set("release the payments service", []float64{1, 0, 0})

	m, err := client.Add(ctx, "deploy checklist")
	require.NoError(t, err)

	_, err = client.Recall(ctx, "release the payments service", WithRecallMinScore(0))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.accessEvents()) == 1
	}, time.Second, 10*time.Millisecond)

	events := store.accessEvents()
	assert.Equal(t, m.ID, events[0].MemoryID)
	assert.Equal(t, storage.AccessRecall, events[0].AccessType)
	assert.Equal(t, "release the payments service", events[0].Query)
}

func TestRecallValidation(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Recall(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.Recall(ctx, "task", WithRecallLimit(-1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecallEmbedderFailure(t *testing.T) {
	client, _, emb := newTestClient(t)
	emb.fail = true

	_, err := client.Recall(context.Background(), "task")
	assert.ErrorIs(t, err, ErrDependency)
}
