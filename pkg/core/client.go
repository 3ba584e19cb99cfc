package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/engram-ai/engram-go/pkg/embedder"
	openaiembedder "github.com/engram-ai/engram-go/pkg/embedder/openai"
	"github.com/engram-ai/engram-go/pkg/scoring"
	"github.com/engram-ai/engram-go/pkg/storage"
	"github.com/engram-ai/engram-go/pkg/storage/mysql"
	"github.com/engram-ai/engram-go/pkg/storage/postgres"
	"github.com/engram-ai/engram-go/pkg/storage/sqlite"
)

// Client is the main entry point for memory operations.
//
// It owns the durable store, the embedding provider, and the asynchronous
// access ledger, and exposes the storage, retrieval, relation, and
// lifecycle operations. A Client is safe for concurrent use.
type Client struct {
	config   *Config
	store    storage.Store
	embedder embedder.Provider
	node     *snowflake.Node
	logger   *zap.Logger
	ledger   *accessLedger
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new client from configuration, constructing the
// store and embedder the configuration names.
func NewClient(config *Config, opts ...ClientOption) (*Client, error) {
	if config == nil {
		return nil, NewMemoryError("NewClient", fmt.Errorf("%w: config is nil", ErrInvalidConfig))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()

	store, err := initStore(cfg)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	provider, err := initEmbedder(cfg)
	if err != nil {
		store.Close()
		return nil, NewMemoryError("NewClient", err)
	}

	return newClient(cfg, store, provider, opts...)
}

// NewClientWithBackends creates a client around an existing store and
// embedding provider, bypassing provider construction. Useful for custom
// backends and tests.
func NewClientWithBackends(config *Config, store storage.Store, provider embedder.Provider, opts ...ClientOption) (*Client, error) {
	if config == nil {
		config = &Config{
			Store:    StoreConfig{Provider: "custom"},
			Embedder: EmbedderConfig{Provider: "custom"},
		}
	}
	if store == nil {
		return nil, NewMemoryError("NewClientWithBackends", fmt.Errorf("%w: store is nil", ErrInvalidConfig))
	}
	if provider == nil {
		return nil, NewMemoryError("NewClientWithBackends", fmt.Errorf("%w: embedder is nil", ErrInvalidConfig))
	}
	return newClient(config.withDefaults(), store, provider, opts...)
}

func newClient(cfg *Config, store storage.Store, provider embedder.Provider, opts ...ClientOption) (*Client, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	c := &Client{
		config:   cfg,
		store:    store,
		embedder: provider,
		node:     node,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ledger = newAccessLedger(store, c.logger, cfg.LedgerBuffer)

	return c, nil
}

// initStore creates the storage backend from configuration.
func initStore(cfg *Config) (storage.Store, error) {
	sc := cfg.Store.Config

	switch cfg.Store.Provider {
	case "sqlite":
		return sqlite.NewClient(&sqlite.Config{
			DBPath:        configString(sc, "db_path", "./engram.db"),
			EmbeddingDims: cfg.Embedder.Dimensions,
		})
	case "postgres":
		return postgres.NewClient(&postgres.Config{
			Host:          configString(sc, "host", "localhost"),
			Port:          configInt(sc, "port", 5432),
			User:          configString(sc, "user", "postgres"),
			Password:      configString(sc, "password", ""),
			DBName:        configString(sc, "db_name", "engram"),
			SSLMode:       configString(sc, "ssl_mode", "disable"),
			EmbeddingDims: cfg.Embedder.Dimensions,
		})
	case "mysql":
		return mysql.NewClient(&mysql.Config{
			Host:          configString(sc, "host", "localhost"),
			Port:          configInt(sc, "port", 3306),
			User:          configString(sc, "user", "root"),
			Password:      configString(sc, "password", ""),
			DBName:        configString(sc, "db_name", "engram"),
			EmbeddingDims: cfg.Embedder.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported store provider: %s", ErrInvalidConfig, cfg.Store.Provider)
	}
}

// initEmbedder creates the embedding provider from configuration.
func initEmbedder(cfg *Config) (embedder.Provider, error) {
	switch cfg.Embedder.Provider {
	case "openai":
		return openaiembedder.NewClient(&openaiembedder.Config{
			APIKey:     cfg.Embedder.APIKey,
			Model:      cfg.Embedder.Model,
			BaseURL:    cfg.Embedder.BaseURL,
			Dimensions: cfg.Embedder.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported embedder provider: %s", ErrInvalidConfig, cfg.Embedder.Provider)
	}
}

func configString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

func configInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Add stores a new memory and returns it.
//
// Content is trimmed and size-bounded, tags are normalized, and metadata
// keys are sanitized before anything reaches the store. The embedding is
// generated unless WithEmbedding supplies one.
func (c *Client) Add(ctx context.Context, content string, opts ...AddOption) (*Memory, error) {
	options := &addOptions{}
	for _, opt := range opts {
		opt(options)
	}

	content, err := normalizeContent("Add", content)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags("Add", options.tags)
	if err != nil {
		return nil, err
	}
	if err := validateMetadata("Add", options.metadata); err != nil {
		return nil, err
	}

	importance := c.config.Lifecycle.DefaultImportance
	if options.hasImp {
		if err := validateImportance("Add", options.importance); err != nil {
			return nil, err
		}
		importance = options.importance
	}

	embedding := options.embedding
	if embedding != nil {
		if err := validateEmbedding("Add", embedding, c.config.Embedder.Dimensions); err != nil {
			return nil, err
		}
	} else {
		embedding, err = c.embedder.Embed(ctx, content)
		if err != nil {
			return nil, dependencyError("Add", err)
		}
	}

	memory := &Memory{
		ID:         c.node.Generate().Int64(),
		Content:    content,
		Summary:    options.summary,
		Embedding:  embedding,
		Tags:       tags,
		Source:     options.source,
		Metadata:   options.metadata,
		Importance: importance,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  options.expiresAt,
	}

	if err := c.store.Insert(ctx, toStorageMemory(memory)); err != nil {
		return nil, NewMemoryError("Add", err)
	}

	c.logger.Debug("memory added",
		zap.Int64("id", memory.ID),
		zap.Int("tags", len(memory.Tags)),
		zap.Float64("importance", memory.Importance))

	return memory, nil
}

// Get retrieves a memory by ID. Soft-deleted memories are returned with
// DeletedAt set; only physically absent rows yield ErrNotFound. Get does
// not count as an access.
func (c *Client) Get(ctx context.Context, id int64) (*Memory, error) {
	m, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Get", err)
	}
	return fromStorageMemory(m), nil
}

// Search retrieves memories semantically similar to the query, ranked by
// the hybrid score (weighted similarity and recency, scaled by
// importance). Results scoring below the threshold are dropped after
// ranking. Each returned memory is recorded in the access ledger.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) ([]*Memory, error) {
	options := &searchOptions{limit: DefaultSearchLimit}
	for _, opt := range opts {
		opt(options)
	}
	if query == "" {
		return nil, validationError("Search", "query is empty")
	}
	if options.limit <= 0 {
		return nil, validationError("Search", "limit must be positive")
	}
	minScore := DefaultSearchMinScore
	if options.hasMin {
		minScore = options.minScore
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, dependencyError("Search", err)
	}

	candidates, err := c.store.Search(ctx, embedding, &storage.SearchOptions{
		Limit:  options.limit,
		Tags:   options.tags,
		Source: options.source,
	})
	if err != nil {
		return nil, NewMemoryError("Search", err)
	}

	results := c.rank(candidates, minScore)
	c.recordRetrieval(results, storage.AccessSearch, query)

	return results, nil
}

// GetRelated retrieves memories semantically similar to an existing
// memory, using its stored embedding as the query and excluding the
// memory itself. The memory must be active.
func (c *Client) GetRelated(ctx context.Context, id int64, opts ...SearchOption) ([]*Memory, error) {
	options := &searchOptions{limit: DefaultSearchLimit}
	for _, opt := range opts {
		opt(options)
	}
	if options.limit <= 0 {
		return nil, validationError("GetRelated", "limit must be positive")
	}
	minScore := DefaultSearchMinScore
	if options.hasMin {
		minScore = options.minScore
	}

	anchor, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("GetRelated", err)
	}
	if anchor.DeletedAt != nil {
		return nil, NewMemoryError("GetRelated", storage.ErrNotFound)
	}

	candidates, err := c.store.Search(ctx, anchor.Embedding, &storage.SearchOptions{
		Limit:     options.limit,
		Tags:      options.tags,
		Source:    options.source,
		ExcludeID: id,
	})
	if err != nil {
		return nil, NewMemoryError("GetRelated", err)
	}

	results := c.rank(candidates, minScore)
	c.recordRetrieval(results, storage.AccessSearch, "")

	return results, nil
}

// Reinforce strengthens a memory: importance rises by the boost (clamped
// to 1.0), the reinforcement counter increments, and the reinforcement
// and access timestamps move to now, all in one atomic store update.
func (c *Client) Reinforce(ctx context.Context, id int64, opts ...ReinforceOption) (*Memory, error) {
	options := &reinforceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	boost := c.config.Lifecycle.ReinforceBoost
	if options.hasBoost {
		boost = options.boost
	}
	if boost < 0 {
		return nil, validationError("Reinforce", "boost must be non-negative")
	}

	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Reinforce", err)
	}
	if current.DeletedAt != nil {
		return nil, NewMemoryError("Reinforce", storage.ErrNotFound)
	}

	now := time.Now().UTC()
	newImportance := scoring.ReinforcedImportance(current.Importance, boost)

	updated, err := c.store.Reinforce(ctx, id, newImportance, now)
	if err != nil {
		return nil, NewMemoryError("Reinforce", err)
	}

	c.ledger.record([]*storage.AccessEvent{{
		ID:         c.node.Generate().Int64(),
		MemoryID:   id,
		AccessType: storage.AccessReinforce,
		CreatedAt:  now,
	}})

	c.logger.Debug("memory reinforced",
		zap.Int64("id", id),
		zap.Float64("importance", updated.Importance))

	return fromStorageMemory(updated), nil
}

// Decay weakens a memory by multiplying its importance by the decay
// factor, never below the importance floor. Decay touches importance
// only; access and reinforcement state stay untouched.
func (c *Client) Decay(ctx context.Context, id int64, opts ...DecayOption) (*Memory, error) {
	options := &decayOptions{}
	for _, opt := range opts {
		opt(options)
	}
	factor := c.config.Lifecycle.DecayFactor
	if options.hasFactor {
		factor = options.factor
	}
	if factor <= 0 || factor > 1 {
		return nil, validationError("Decay", "decay factor must be in (0, 1]")
	}

	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("Decay", err)
	}
	if current.DeletedAt != nil {
		return nil, NewMemoryError("Decay", storage.ErrNotFound)
	}

	newImportance := scoring.DecayedImportance(current.Importance, factor, c.config.Lifecycle.ImportanceFloor)
	updated, err := c.store.SetImportance(ctx, id, newImportance)
	if err != nil {
		return nil, NewMemoryError("Decay", err)
	}

	return fromStorageMemory(updated), nil
}

// Forget deletes memories. With ForgetID it targets one memory; with
// criteria options it bulk-deletes every active match in a single store
// operation. ForgetSoft marks instead of removing; hard deletion
// cascades relations and access events. Returns the number of memories
// affected. Forgetting an already-forgotten memory affects zero rows and
// is not an error.
func (c *Client) Forget(ctx context.Context, opts ...ForgetOption) (int64, error) {
	options := &forgetOptions{}
	for _, opt := range opts {
		opt(options)
	}

	hasCriteria := len(options.tags) > 0 || options.olderThanDays > 0 || options.maxImportance > 0
	if options.id != 0 && hasCriteria {
		return 0, validationError("Forget", "ForgetID cannot be combined with criteria")
	}
	if options.id == 0 && !hasCriteria {
		return 0, validationError("Forget", "no target: supply ForgetID or at least one criterion")
	}
	if options.olderThanDays < 0 {
		return 0, validationError("Forget", "older-than days must be non-negative")
	}
	if options.maxImportance < 0 || options.maxImportance > 1 {
		return 0, validationError("Forget", "max importance out of range [0, 1]")
	}

	var (
		affected int64
		err      error
	)
	if options.id != 0 {
		if options.soft {
			affected, err = c.store.SoftDelete(ctx, options.id)
		} else {
			affected, err = c.store.HardDelete(ctx, options.id)
		}
	} else {
		tags, terr := normalizeTags("Forget", options.tags)
		if terr != nil {
			return 0, terr
		}
		affected, err = c.store.ForgetByCriteria(ctx, &storage.ForgetCriteria{
			Tags:          tags,
			OlderThanDays: options.olderThanDays,
			MaxImportance: options.maxImportance,
			Soft:          options.soft,
		})
	}
	if err != nil {
		return 0, NewMemoryError("Forget", err)
	}

	c.logger.Debug("memories forgotten",
		zap.Int64("affected", affected),
		zap.Bool("soft", options.soft))

	return affected, nil
}

// Relate creates or updates a directed, typed edge between two active
// memories. The (source, target, type) triple is unique; relating the
// same triple again overwrites strength and metadata in place. Self-loops
// are rejected.
func (c *Client) Relate(ctx context.Context, sourceID, targetID int64, relationType string, opts ...RelateOption) (*Relation, error) {
	options := &relateOptions{strength: 0.5}
	for _, opt := range opts {
		opt(options)
	}

	if sourceID == targetID {
		return nil, validationError("Relate", "relation cannot point to its own source")
	}
	if relationType == "" {
		return nil, validationError("Relate", "relation type is empty")
	}
	if options.hasStrength {
		if err := validateStrength("Relate", options.strength); err != nil {
			return nil, err
		}
	}
	if err := validateMetadata("Relate", options.metadata); err != nil {
		return nil, err
	}

	for _, id := range []int64{sourceID, targetID} {
		m, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, NewMemoryError("Relate", err)
		}
		if m.DeletedAt != nil {
			return nil, NewMemoryError("Relate", storage.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	relation, err := c.store.UpsertRelation(ctx, &storage.Relation{
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relationType,
		Strength:  options.strength,
		Metadata:  options.metadata,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, NewMemoryError("Relate", err)
	}

	// Linking touches both endpoints.
	events := make([]*storage.AccessEvent, 0, 2)
	for _, id := range []int64{sourceID, targetID} {
		events = append(events, &storage.AccessEvent{
			ID:         c.node.Generate().Int64(),
			MemoryID:   id,
			AccessType: storage.AccessRelate,
			CreatedAt:  now,
		})
	}
	c.ledger.record(events)

	return fromStorageRelation(relation), nil
}

// Relations returns the edges touching a memory in the given direction
// (outgoing, incoming, or both; empty defaults to both), with the
// opposite endpoint's content denormalized onto each edge. Edges to
// soft-deleted peers are hidden.
func (c *Client) Relations(ctx context.Context, id int64, direction string) ([]*Relation, error) {
	if direction == "" {
		direction = DirectionBoth
	}
	switch direction {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
	default:
		return nil, validationError("Relations", fmt.Sprintf("unknown direction %q", direction))
	}

	if _, err := c.store.Get(ctx, id); err != nil {
		return nil, NewMemoryError("Relations", err)
	}

	relations, err := c.store.RelationsByMemory(ctx, id, direction)
	if err != nil {
		return nil, NewMemoryError("Relations", err)
	}

	result := make([]*Relation, len(relations))
	for i, r := range relations {
		result[i] = fromStorageRelation(r)
	}
	return result, nil
}

// Unrelate removes an exact (source, target, type) edge. Returns
// ErrNotFound if no such edge exists.
func (c *Client) Unrelate(ctx context.Context, sourceID, targetID int64, relationType string) error {
	removed, err := c.store.DeleteRelation(ctx, sourceID, targetID, relationType)
	if err != nil {
		return NewMemoryError("Unrelate", err)
	}
	if !removed {
		return NewMemoryError("Unrelate", storage.ErrNotFound)
	}
	return nil
}

// Close flushes the access ledger and releases the store and embedder.
func (c *Client) Close() error {
	c.ledger.close()

	var firstErr error
	if err := c.store.Close(); err != nil {
		firstErr = err
	}
	if err := c.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = c.logger.Sync()

	return NewMemoryError("Close", firstErr)
}

// rank applies hybrid scoring to search candidates, sorts by score
// descending, and then drops results below the threshold. The candidate
// pool is bounded by raw similarity before thresholding, so a low
// threshold cannot widen it.
func (c *Client) rank(candidates []*storage.Memory, minScore float64) []*Memory {
	scored := make([]*Memory, 0, len(candidates))
	for _, sm := range candidates {
		m := fromStorageMemory(sm)
		m.Score = scoring.HybridScore(m.Similarity, m.recencyAnchor(), m.Importance, c.config.Scoring)
		scored = append(scored, m)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	results := scored[:0]
	for _, m := range scored {
		if m.Score >= minScore {
			results = append(results, m)
		}
	}
	return results
}

// recordRetrieval enqueues one access event per returned memory.
func (c *Client) recordRetrieval(memories []*Memory, accessType, query string) {
	if len(memories) == 0 {
		return
	}

	now := time.Now().UTC()
	events := make([]*storage.AccessEvent, len(memories))
	for i, m := range memories {
		events[i] = &storage.AccessEvent{
			ID:         c.node.Generate().Int64(),
			MemoryID:   m.ID,
			AccessType: accessType,
			Query:      query,
			Similarity: m.Similarity,
			CreatedAt:  now,
		}
	}
	c.ledger.record(events)
}
