// Package postgres provides the PostgreSQL + pgvector implementation of the
// storage.Store interface.
//
// Similarity search runs inside the database using pgvector's cosine
// distance operator, so only the candidate pool crosses the wire.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Client implements storage.Store using PostgreSQL with pgvector.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	EmbeddingDims int
	SSLMode       string
}

// NewClient creates a new PostgreSQL store.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:         db,
		dimensions: cfg.EmbeddingDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables enables pgvector and creates the schema.
func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id BIGINT PRIMARY KEY,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			access_count BIGINT NOT NULL DEFAULT 0,
			reinforcement_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			last_accessed_at TIMESTAMPTZ,
			last_reinforced_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ
		)`, c.dimensions),
		`CREATE TABLE IF NOT EXISTS relations (
			id BIGSERIAL PRIMARY KEY,
			source_id BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			target_id BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			relation_type TEXT NOT NULL,
			strength DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(source_id, target_id, relation_type)
		)`,
		`CREATE TABLE IF NOT EXISTS access_events (
			id BIGSERIAL PRIMARY KEY,
			memory_id BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			access_type TEXT NOT NULL,
			query TEXT NOT NULL DEFAULT '',
			similarity DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_access_events_memory ON access_events(memory_id)`,
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// Insert inserts a memory. The embedding is sent in pgvector text format.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	tagsJSON, metadataJSON, err := encodeMemoryFields(memory)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO memories
		(id, content, summary, embedding, tags, source, metadata, importance, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		memory.ID,
		memory.Content,
		memory.Summary,
		vectorToString(memory.Embedding),
		tagsJSON,
		memory.Source,
		metadataJSON,
		memory.Importance,
		memory.CreatedAt,
		nullableTime(memory.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Get retrieves a memory by ID, including soft-deleted rows.
func (c *Client) Get(ctx context.Context, id int64) (*storage.Memory, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE id = $1
	`, id)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return memory, nil
}

// Search performs similarity search using pgvector's cosine distance
// operator. Similarity is 1 - distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	conditions := []string{"deleted_at IS NULL", "(expires_at IS NULL OR expires_at > NOW())"}
	args := []interface{}{vectorToString(embedding)}

	if opts.Source != "" {
		args = append(args, opts.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}
	if opts.ExcludeID != 0 {
		args = append(args, opts.ExcludeID)
		conditions = append(conditions, fmt.Sprintf("id != $%d", len(args)))
	}
	if len(opts.Tags) > 0 {
		tagConditions := make([]string, 0, len(opts.Tags))
		for _, tag := range opts.Tags {
			args = append(args, `%"`+escapeLike(tag)+`"%`)
			tagConditions = append(tagConditions, fmt.Sprintf(`tags LIKE $%d ESCAPE '\'`, len(args)))
		}
		conditions = append(conditions, "("+strings.Join(tagConditions, " OR ")+")")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, memoryColumns, strings.Join(conditions, " AND "), len(args))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemoryWithSimilarity(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return memories, nil
}

// Reinforce applies the multi-field reinforcement update as one statement.
func (c *Client) Reinforce(ctx context.Context, id int64, newImportance float64, now time.Time) (*storage.Memory, error) {
	result, err := c.db.ExecContext(ctx, `
		UPDATE memories
		SET importance = $1,
		    reinforcement_count = reinforcement_count + 1,
		    last_reinforced_at = $2,
		    last_accessed_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`, newImportance, now, id)
	if err != nil {
		return nil, fmt.Errorf("Reinforce: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Reinforce: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	return c.Get(ctx, id)
}

// SetImportance overwrites importance without touching counters.
func (c *Client) SetImportance(ctx context.Context, id int64, importance float64) (*storage.Memory, error) {
	result, err := c.db.ExecContext(ctx, `
		UPDATE memories SET importance = $1 WHERE id = $2 AND deleted_at IS NULL
	`, importance, id)
	if err != nil {
		return nil, fmt.Errorf("SetImportance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("SetImportance: %w", err)
	}
	if affected == 0 {
		return nil, storage.ErrNotFound
	}

	return c.Get(ctx, id)
}

// SoftDelete marks a memory deleted. Idempotent.
func (c *Client) SoftDelete(ctx context.Context, id int64) (int64, error) {
	result, err := c.db.ExecContext(ctx, `
		UPDATE memories SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return 0, fmt.Errorf("SoftDelete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("SoftDelete: %w", err)
	}
	return affected, nil
}

// HardDelete physically removes a memory; relations and events cascade.
func (c *Client) HardDelete(ctx context.Context, id int64) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("HardDelete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("HardDelete: %w", err)
	}
	return affected, nil
}

// ForgetByCriteria applies a single bulk soft or hard delete.
func (c *Client) ForgetByCriteria(ctx context.Context, criteria *storage.ForgetCriteria) (int64, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if len(criteria.Tags) > 0 {
		tagConditions := make([]string, 0, len(criteria.Tags))
		for _, tag := range criteria.Tags {
			args = append(args, `%"`+escapeLike(tag)+`"%`)
			tagConditions = append(tagConditions, fmt.Sprintf(`tags LIKE $%d ESCAPE '\'`, len(args)))
		}
		conditions = append(conditions, "("+strings.Join(tagConditions, " OR ")+")")
	}
	if criteria.OlderThanDays > 0 {
		args = append(args, time.Now().AddDate(0, 0, -criteria.OlderThanDays))
		conditions = append(conditions, fmt.Sprintf("COALESCE(last_accessed_at, created_at) < $%d", len(args)))
	}
	if criteria.MaxImportance > 0 {
		args = append(args, criteria.MaxImportance)
		conditions = append(conditions, fmt.Sprintf("importance < $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var query string
	if criteria.Soft {
		query = "UPDATE memories SET deleted_at = NOW() WHERE " + where
	} else {
		query = "DELETE FROM memories WHERE " + where
	}

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("ForgetByCriteria: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ForgetByCriteria: %w", err)
	}
	return affected, nil
}

// UpsertRelation inserts or overwrites the (source, target, type) triple,
// returning the stored row via RETURNING.
func (c *Client) UpsertRelation(ctx context.Context, relation *storage.Relation) (*storage.Relation, error) {
	metadataJSON, err := encodeJSON(relation.Metadata)
	if err != nil {
		return nil, fmt.Errorf("UpsertRelation: %w", err)
	}

	now := time.Now()
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO relations (source_id, target_id, relation_type, strength, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (source_id, target_id, relation_type) DO UPDATE SET
			strength = EXCLUDED.strength,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING id, source_id, target_id, relation_type, strength, metadata, created_at, updated_at
	`, relation.SourceID, relation.TargetID, relation.Type, relation.Strength, metadataJSON, now)

	stored, err := scanRelation(row)
	if err != nil {
		return nil, fmt.Errorf("UpsertRelation: %w", err)
	}
	return stored, nil
}

// RelationsByMemory returns edges touching a memory with the peer joined in.
func (c *Client) RelationsByMemory(ctx context.Context, id int64, direction string) ([]*storage.Relation, error) {
	var relations []*storage.Relation

	if direction == storage.DirectionOutgoing || direction == storage.DirectionBoth {
		out, err := c.relationsByEndpoint(ctx, id, storage.DirectionOutgoing)
		if err != nil {
			return nil, err
		}
		relations = append(relations, out...)
	}
	if direction == storage.DirectionIncoming || direction == storage.DirectionBoth {
		in, err := c.relationsByEndpoint(ctx, id, storage.DirectionIncoming)
		if err != nil {
			return nil, err
		}
		relations = append(relations, in...)
	}

	return relations, nil
}

func (c *Client) relationsByEndpoint(ctx context.Context, id int64, direction string) ([]*storage.Relation, error) {
	ownColumn, peerColumn := "source_id", "target_id"
	if direction == storage.DirectionIncoming {
		ownColumn, peerColumn = "target_id", "source_id"
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.source_id, r.target_id, r.relation_type, r.strength,
		       r.metadata, r.created_at, r.updated_at,
		       m.id, m.content, m.summary
		FROM relations r
		JOIN memories m ON m.id = r.%s
		WHERE r.%s = $1 AND m.deleted_at IS NULL
	`, peerColumn, ownColumn)

	rows, err := c.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("RelationsByMemory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []*storage.Relation
	for rows.Next() {
		relation, err := scanRelationWithPeer(rows)
		if err != nil {
			return nil, fmt.Errorf("RelationsByMemory: %w", err)
		}
		relation.Direction = direction
		relations = append(relations, relation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RelationsByMemory: %w", err)
	}

	return relations, nil
}

// DeleteRelation removes an exact (source, target, type) edge.
func (c *Client) DeleteRelation(ctx context.Context, sourceID, targetID int64, relationType string) (bool, error) {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM relations
		WHERE source_id = $1 AND target_id = $2 AND relation_type = $3
	`, sourceID, targetID, relationType)
	if err != nil {
		return false, fmt.Errorf("DeleteRelation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteRelation: %w", err)
	}
	return affected > 0, nil
}

// RecordAccess appends access events inside one transaction, coupling each
// insert with its memory's counter and timestamp update.
func (c *Client) RecordAccess(ctx context.Context, events []*storage.AccessEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("RecordAccess: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, event := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO access_events (memory_id, access_type, query, similarity, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, event.MemoryID, event.AccessType, event.Query, event.Similarity, event.CreatedAt)
		if err != nil {
			return fmt.Errorf("RecordAccess: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE memories
			SET access_count = access_count + 1, last_accessed_at = $1
			WHERE id = $2
		`, event.CreatedAt, event.MemoryID)
		if err != nil {
			return fmt.Errorf("RecordAccess: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("RecordAccess: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
