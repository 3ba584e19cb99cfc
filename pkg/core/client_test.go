package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/storage"
)

const testDims = 3

func newTestClient(t *testing.T) (*Client, *fakeStore, *fakeEmbedder) {
	t.Helper()

	store := newFakeStore()
	emb := newFakeEmbedder(testDims)

	client, err := NewClientWithBackends(&Config{
		Store:    StoreConfig{Provider: "fake"},
		Embedder: EmbedderConfig{Provider: "fake", Dimensions: testDims},
	}, store, emb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, store, emb
}

func TestAddAndGet(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("the deploy pipeline uses blue-green rollouts", []float64{1, 0, 0})

	m, err := client.Add(ctx, "  the deploy pipeline uses blue-green rollouts  ",
		WithTags("Deploy", "deploy", "INFRA"),
		WithSummary("deploy strategy"),
		WithSource("runbook"),
		WithMetadata(map[string]interface{}{"team": "platform"}),
	)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, "the deploy pipeline uses blue-green rollouts", m.Content)
	assert.Equal(t, []string{"deploy", "infra"}, m.Tags)
	assert.Equal(t, DefaultImportance, m.Importance)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Nil(t, m.LastAccessedAt)

	got, err := client.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, "runbook", got.Source)
	assert.Equal(t, "platform", got.Metadata["team"])
}

func TestAddValidation(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		opts    []AddOption
	}{
		{"empty content", "   ", nil},
		{"importance above one", "x", []AddOption{WithImportance(1.5)}},
		{"negative importance", "x", []AddOption{WithImportance(-0.1)}},
		{"reserved metadata key", "x", []AddOption{WithMetadata(map[string]interface{}{"__proto__": 1})}},
		{"dotted metadata key", "x", []AddOption{WithMetadata(map[string]interface{}{"a.b": 1})}},
		{"dollar metadata key", "x", []AddOption{WithMetadata(map[string]interface{}{"$set": 1})}},
		{"wrong embedding dims", "x", []AddOption{WithEmbedding([]float64{1, 0})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Add(ctx, tt.content, tt.opts...)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAddTooManyTags(t *testing.T) {
	client, _, _ := newTestClient(t)

	tags := make([]string, 17)
	for i := range tags {
		tags[i] = string(rune('a' + i))
	}
	_, err := client.Add(context.Background(), "x", WithTags(tags...))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddEmbedderFailure(t *testing.T) {
	client, _, emb := newTestClient(t)
	emb.fail = true

	_, err := client.Add(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrDependency)
}

func TestSearchRanksByHybridScore(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("exact match", []float64{1, 0, 0})
	emb.set("close match", []float64{0.8, 0.6, 0})
	emb.set("query", []float64{1, 0, 0})

	// Perfect similarity but low importance.
	weak, err := client.Add(ctx, "exact match", WithImportance(0.1))
	require.NoError(t, err)
	// Lower similarity but high importance wins on the hybrid score.
	strong, err := client.Add(ctx, "close match", WithImportance(0.9))
	require.NoError(t, err)

	results, err := client.Search(ctx, "query", WithMinScore(0))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, strong.ID, results[0].ID)
	assert.Equal(t, weak.ID, results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, results[1].Similarity, 1e-9)
}

func TestSearchMinScoreFiltersAfterRanking(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("on topic", []float64{1, 0, 0})
	emb.set("off topic", []float64{0, 1, 0})
	emb.set("query", []float64{1, 0, 0})

	_, err := client.Add(ctx, "on topic")
	require.NoError(t, err)
	_, err = client.Add(ctx, "off topic")
	require.NoError(t, err)

	results, err := client.Search(ctx, "query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "on topic", results[0].Content)
}

func TestSearchTagAndSourceFilters(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("query", []float64{1, 0, 0})
	for _, fixture := range []struct {
		content string
		tags    []string
		source  string
	}{
		{"alpha", []string{"infra"}, "runbook"},
		{"beta", []string{"product"}, "chat"},
		{"gamma", []string{"infra"}, "chat"},
	} {
		emb.set(fixture.content, []float64{1, 0, 0})
		_, err := client.Add(ctx, fixture.content,
			WithTags(fixture.tags...), WithSource(fixture.source))
		require.NoError(t, err)
	}

	results, err := client.Search(ctx, "query", WithTagFilter("infra"))
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = client.Search(ctx, "query", WithTagFilter("infra"), WithSourceFilter("chat"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "gamma", results[0].Content)
}

func TestSearchRecordsAccess(t *testing.T) {
	client, store, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("remember me", []float64{1, 0, 0})
	emb.set("query", []float64{1, 0, 0})

	m, err := client.Add(ctx, "remember me")
	require.NoError(t, err)

	_, err = client.Search(ctx, "query")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.accessEvents()) == 1
	}, time.Second, 10*time.Millisecond)

	events := store.accessEvents()
	assert.Equal(t, storage.AccessSearch, events[0].AccessType)
	assert.Equal(t, "query", events[0].Query)

	got, err := client.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)
}

func TestSearchValidation(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Search(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.Search(ctx, "query", WithLimit(0))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetRelatedExcludesSelf(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("first note", []float64{1, 0, 0})
	emb.set("second note", []float64{0.9, 0.435889894354, 0})

	first, err := client.Add(ctx, "first note")
	require.NoError(t, err)
	second, err := client.Add(ctx, "second note")
	require.NoError(t, err)

	related, err := client.GetRelated(ctx, first.ID, WithMinScore(0))
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, second.ID, related[0].ID)
}

func TestGetRelatedSoftDeletedAnchor(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("gone", []float64{1, 0, 0})
	m, err := client.Add(ctx, "gone")
	require.NoError(t, err)

	_, err = client.Forget(ctx, ForgetID(m.ID), ForgetSoft())
	require.NoError(t, err)

	_, err = client.GetRelated(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReinforceClampsToOne(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("important fact", []float64{1, 0, 0})
	m, err := client.Add(ctx, "important fact", WithImportance(0.95))
	require.NoError(t, err)

	updated, err := client.Reinforce(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, updated.Importance)
	assert.Equal(t, int64(1), updated.ReinforcementCount)
	require.NotNil(t, updated.LastReinforcedAt)
	require.NotNil(t, updated.LastAccessedAt)
}

func TestReinforceSoftDeleted(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("gone", []float64{1, 0, 0})
	m, err := client.Add(ctx, "gone")
	require.NoError(t, err)
	_, err = client.Forget(ctx, ForgetID(m.ID), ForgetSoft())
	require.NoError(t, err)

	_, err = client.Reinforce(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecayStopsAtFloor(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("fading", []float64{1, 0, 0})
	m, err := client.Add(ctx, "fading", WithImportance(0.02))
	require.NoError(t, err)

	updated, err := client.Decay(ctx, m.ID, WithDecayFactor(0.1))
	require.NoError(t, err)
	assert.Equal(t, ImportanceFloor, updated.Importance)

	// Further decay holds at the floor.
	updated, err = client.Decay(ctx, m.ID, WithDecayFactor(0.1))
	require.NoError(t, err)
	assert.Equal(t, ImportanceFloor, updated.Importance)
}

func TestDecayValidation(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("x", []float64{1, 0, 0})
	m, err := client.Add(ctx, "x")
	require.NoError(t, err)

	_, err = client.Decay(ctx, m.ID, WithDecayFactor(0))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Decay(ctx, m.ID, WithDecayFactor(1.5))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSoftForgetHidesFromSearch(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("keep", []float64{1, 0, 0})
	emb.set("drop", []float64{1, 0, 0})
	emb.set("query", []float64{1, 0, 0})

	keep, err := client.Add(ctx, "keep")
	require.NoError(t, err)
	drop, err := client.Add(ctx, "drop")
	require.NoError(t, err)

	affected, err := client.Forget(ctx, ForgetID(drop.ID), ForgetSoft())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	results, err := client.Search(ctx, "query", WithMinScore(0))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, keep.ID, results[0].ID)

	// Soft-deleted rows still resolve by ID, marked deleted.
	got, err := client.Get(ctx, drop.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)

	// Forgetting again affects nothing and is not an error.
	affected, err = client.Forget(ctx, ForgetID(drop.ID), ForgetSoft())
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestHardForgetCascades(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("a", []float64{1, 0, 0})
	emb.set("b", []float64{0, 1, 0})

	a, err := client.Add(ctx, "a")
	require.NoError(t, err)
	b, err := client.Add(ctx, "b")
	require.NoError(t, err)

	_, err = client.Relate(ctx, a.ID, b.ID, "supports")
	require.NoError(t, err)

	affected, err := client.Forget(ctx, ForgetID(b.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = client.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	relations, err := client.Relations(ctx, a.ID, DirectionBoth)
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestBulkForgetByTag(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	for _, content := range []string{"scratch one", "scratch two", "scratch three"} {
		emb.set(content, []float64{1, 0, 0})
		_, err := client.Add(ctx, content, WithTags("temporary"))
		require.NoError(t, err)
	}
	emb.set("durable", []float64{1, 0, 0})
	durable, err := client.Add(ctx, "durable", WithTags("keep"))
	require.NoError(t, err)

	affected, err := client.Forget(ctx, ForgetTags("temporary"), ForgetSoft())
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	got, err := client.Get(ctx, durable.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)
}

func TestBulkForgetByImportance(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("weak", []float64{1, 0, 0})
	emb.set("strong", []float64{1, 0, 0})

	_, err := client.Add(ctx, "weak", WithImportance(0.1))
	require.NoError(t, err)
	strong, err := client.Add(ctx, "strong", WithImportance(0.9))
	require.NoError(t, err)

	affected, err := client.Forget(ctx, ForgetBelowImportance(0.2))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = client.Get(ctx, strong.ID)
	assert.NoError(t, err)
}

func TestForgetValidation(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	_, err := client.Forget(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	emb.set("x", []float64{1, 0, 0})
	m, err := client.Add(ctx, "x")
	require.NoError(t, err)

	_, err = client.Forget(ctx, ForgetID(m.ID), ForgetTags("temporary"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelateRejectsSelfLoop(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("x", []float64{1, 0, 0})
	m, err := client.Add(ctx, "x")
	require.NoError(t, err)

	_, err = client.Relate(ctx, m.ID, m.ID, "related_to")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelateUpsertOverwritesInPlace(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("a", []float64{1, 0, 0})
	emb.set("b", []float64{0, 1, 0})
	a, err := client.Add(ctx, "a")
	require.NoError(t, err)
	b, err := client.Add(ctx, "b")
	require.NoError(t, err)

	first, err := client.Relate(ctx, a.ID, b.ID, "supports", WithStrength(0.3))
	require.NoError(t, err)

	second, err := client.Relate(ctx, a.ID, b.ID, "supports", WithStrength(0.8))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.8, second.Strength)

	relations, err := client.Relations(ctx, a.ID, DirectionOutgoing)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, 0.8, relations[0].Strength)
}

func TestRelateRecordsAccessOnBothEndpoints(t *testing.T) {
	client, store, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("a", []float64{1, 0, 0})
	emb.set("b", []float64{0, 1, 0})
	a, err := client.Add(ctx, "a")
	require.NoError(t, err)
	b, err := client.Add(ctx, "b")
	require.NoError(t, err)

	_, err = client.Relate(ctx, a.ID, b.ID, "supports")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.accessEvents()) == 2
	}, time.Second, 10*time.Millisecond)

	touched := map[int64]bool{}
	for _, event := range store.accessEvents() {
		assert.Equal(t, storage.AccessRelate, event.AccessType)
		touched[event.MemoryID] = true
	}
	assert.True(t, touched[a.ID])
	assert.True(t, touched[b.ID])
}

func TestRelationsDirections(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("cause", []float64{1, 0, 0})
	emb.set("effect", []float64{0, 1, 0})
	cause, err := client.Add(ctx, "cause", WithSummary("the cause"))
	require.NoError(t, err)
	effect, err := client.Add(ctx, "effect")
	require.NoError(t, err)

	_, err = client.Relate(ctx, cause.ID, effect.ID, "leads_to")
	require.NoError(t, err)

	outgoing, err := client.Relations(ctx, cause.ID, DirectionOutgoing)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, DirectionOutgoing, outgoing[0].Direction)
	assert.Equal(t, effect.ID, outgoing[0].PeerID)
	assert.Equal(t, "effect", outgoing[0].PeerContent)

	incoming, err := client.Relations(ctx, effect.ID, DirectionIncoming)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, DirectionIncoming, incoming[0].Direction)
	assert.Equal(t, cause.ID, incoming[0].PeerID)
	assert.Equal(t, "the cause", incoming[0].PeerSummary)

	none, err := client.Relations(ctx, cause.ID, DirectionIncoming)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = client.Relations(ctx, cause.ID, "sideways")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelationsHideSoftDeletedPeer(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("a", []float64{1, 0, 0})
	emb.set("b", []float64{0, 1, 0})
	a, err := client.Add(ctx, "a")
	require.NoError(t, err)
	b, err := client.Add(ctx, "b")
	require.NoError(t, err)

	_, err = client.Relate(ctx, a.ID, b.ID, "supports")
	require.NoError(t, err)

	_, err = client.Forget(ctx, ForgetID(b.ID), ForgetSoft())
	require.NoError(t, err)

	relations, err := client.Relations(ctx, a.ID, DirectionBoth)
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestUnrelate(t *testing.T) {
	client, _, emb := newTestClient(t)
	ctx := context.Background()

	emb.set("a", []float64{1, 0, 0})
	emb.set("b", []float64{0, 1, 0})
	a, err := client.Add(ctx, "a")
	require.NoError(t, err)
	b, err := client.Add(ctx, "b")
	require.NoError(t, err)

	_, err = client.Relate(ctx, a.ID, b.ID, "supports")
	require.NoError(t, err)

	require.NoError(t, client.Unrelate(ctx, a.ID, b.ID, "supports"))

	err = client.Unrelate(ctx, a.ID, b.ID, "supports")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryErrorWrapping(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.Get(context.Background(), 424242)
	require.Error(t, err)

	var memErr *MemoryError
	require.True(t, errors.As(err, &memErr))
	assert.Equal(t, "Get", memErr.Op)
	assert.ErrorIs(t, err, ErrNotFound)
}
