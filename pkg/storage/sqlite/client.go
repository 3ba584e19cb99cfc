// Package sqlite provides the SQLite implementation of the storage.Store
// interface.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-process agents. Vectors are stored as JSON strings in TEXT
// fields, and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// EmbeddingDims is the dimension of embedding vectors.
	EmbeddingDims int
}

// NewClient creates a new SQLite store.
//
// Foreign keys are enabled so that hard-deleting a memory cascades to its
// relations and access events.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
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

// initTables initializes the database schema.
func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY,
			content TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			embedding TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			importance REAL NOT NULL DEFAULT 0.5,
			access_count INTEGER NOT NULL DEFAULT 0,
			reinforcement_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			last_accessed_at DATETIME,
			last_reinforced_at DATETIME,
			expires_at DATETIME,
			deleted_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			id INTEGER PRIMARY KEY,
			source_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			target_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			relation_type TEXT NOT NULL,
			strength REAL NOT NULL DEFAULT 0.5,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(source_id, target_id, relation_type)
		)`,
		`CREATE TABLE IF NOT EXISTS access_events (
			id INTEGER PRIMARY KEY,
			memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			access_type TEXT NOT NULL,
			query TEXT NOT NULL DEFAULT '',
			similarity REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
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

// Insert inserts a memory. Vectors, tags, and metadata are stored as JSON
// strings in TEXT fields.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	embeddingJSON, tagsJSON, metadataJSON, err := encodeMemoryFields(memory)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	query := `
		INSERT INTO memories
		(id, content, summary, embedding, tags, source, metadata, importance,
		 access_count, reinforcement_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.Content,
		memory.Summary,
		embeddingJSON,
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
		WHERE id = ?
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

// Search performs similarity search over active memories.
//
// SQLite has no native vector operations, so row filtering happens in SQL
// and cosine similarity is computed in memory before sorting and limiting.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	conditions := []string{"deleted_at IS NULL", "(expires_at IS NULL OR expires_at > ?)"}
	args := []interface{}{time.Now()}

	if opts.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.ExcludeID != 0 {
		conditions = append(conditions, "id != ?")
		args = append(args, opts.ExcludeID)
	}
	if len(opts.Tags) > 0 {
		clause, tagArgs := tagFilterClause(opts.Tags)
		conditions = append(conditions, clause)
		args = append(args, tagArgs...)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM memories
		WHERE %s
	`, memoryColumns, strings.Join(conditions, " AND "))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*storage.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		memory.Similarity = cosineSimilarity(embedding, memory.Embedding)
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return topBySimilarity(memories, opts.Limit), nil
}

// Reinforce applies importance, counter, and timestamp updates as one
// statement so partial application is impossible.
func (c *Client) Reinforce(ctx context.Context, id int64, newImportance float64, now time.Time) (*storage.Memory, error) {
	result, err := c.db.ExecContext(ctx, `
		UPDATE memories
		SET importance = ?,
		    reinforcement_count = reinforcement_count + 1,
		    last_reinforced_at = ?,
		    last_accessed_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, newImportance, now, now, id)
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
		UPDATE memories
		SET importance = ?
		WHERE id = ? AND deleted_at IS NULL
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
		UPDATE memories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return 0, fmt.Errorf("SoftDelete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("SoftDelete: %w", err)
	}
	return affected, nil
}

// HardDelete physically removes a memory. Relations and access events
// cascade via foreign keys. Idempotent.
func (c *Client) HardDelete(ctx context.Context, id int64) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("HardDelete: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("HardDelete: %w", err)
	}
	return affected, nil
}

// ForgetByCriteria applies a single bulk soft or hard delete over matching
// active memories.
func (c *Client) ForgetByCriteria(ctx context.Context, criteria *storage.ForgetCriteria) (int64, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if len(criteria.Tags) > 0 {
		clause, tagArgs := tagFilterClause(criteria.Tags)
		conditions = append(conditions, clause)
		args = append(args, tagArgs...)
	}
	if criteria.OlderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -criteria.OlderThanDays)
		conditions = append(conditions, "COALESCE(last_accessed_at, created_at) < ?")
		args = append(args, cutoff)
	}
	if criteria.MaxImportance > 0 {
		conditions = append(conditions, "importance < ?")
		args = append(args, criteria.MaxImportance)
	}

	where := strings.Join(conditions, " AND ")

	var query string
	if criteria.Soft {
		query = "UPDATE memories SET deleted_at = ? WHERE " + where
		args = append([]interface{}{time.Now()}, args...)
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

// UpsertRelation inserts a relation or overwrites strength and metadata of
// the existing (source, target, type) triple.
func (c *Client) UpsertRelation(ctx context.Context, relation *storage.Relation) (*storage.Relation, error) {
	metadataJSON, err := encodeJSON(relation.Metadata)
	if err != nil {
		return nil, fmt.Errorf("UpsertRelation: %w", err)
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO relations (source_id, target_id, relation_type, strength, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation_type) DO UPDATE SET
			strength = excluded.strength,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, relation.SourceID, relation.TargetID, relation.Type, relation.Strength, metadataJSON, now, now)
	if err != nil {
		return nil, fmt.Errorf("UpsertRelation: %w", err)
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, relation_type, strength, metadata, created_at, updated_at
		FROM relations
		WHERE source_id = ? AND target_id = ? AND relation_type = ?
	`, relation.SourceID, relation.TargetID, relation.Type)

	stored, err := scanRelation(row)
	if err != nil {
		return nil, fmt.Errorf("UpsertRelation: %w", err)
	}
	return stored, nil
}

// RelationsByMemory returns edges touching a memory with the opposite
// endpoint denormalized. Edges to soft-deleted peers are excluded.
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

// relationsByEndpoint fetches one direction's edges with the peer joined in.
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
		WHERE r.%s = ? AND m.deleted_at IS NULL
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
		WHERE source_id = ? AND target_id = ? AND relation_type = ?
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

// RecordAccess appends access events inside a single transaction, coupling
// each insert with the access_count and last_accessed_at update on its
// target memory.
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
			VALUES (?, ?, ?, ?, ?)
		`, event.MemoryID, event.AccessType, event.Query, event.Similarity, event.CreatedAt)
		if err != nil {
			return fmt.Errorf("RecordAccess: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE memories
			SET access_count = access_count + 1, last_accessed_at = ?
			WHERE id = ?
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
