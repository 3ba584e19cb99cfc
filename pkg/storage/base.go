// Package storage provides interfaces and types for durable memory storage
// backends.
//
// It defines the Store interface that all storage implementations must
// satisfy, along with the record types for memories, relations, and access
// events. The store is the sole source of truth; the similarity search it
// exposes is consumed as a black box returning (memory, similarity) pairs.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested memory or relation does not exist,
// or exists only as a soft-deleted row.
var ErrNotFound = errors.New("not found")

// Memory represents a memory row in the durable store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Memory structure.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID int64

	// Content is the text content of the memory.
	Content string

	// Summary is an optional short summary of the content.
	Summary string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Tags is the normalized tag set (lowercase).
	Tags []string

	// Source is an optional free-text label for where the memory came from.
	Source string

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// Importance is the caller-adjusted significance weight (0.0-1.0).
	Importance float64

	// AccessCount is the number of recorded accesses. Monotonic.
	AccessCount int64

	// ReinforcementCount is the number of reinforcements. Monotonic.
	ReinforcementCount int64

	// CreatedAt is when the memory was created. Immutable.
	CreatedAt time.Time

	// LastAccessedAt is when the memory was last retrieved (nil if never).
	LastAccessedAt *time.Time

	// LastReinforcedAt is when the memory was last reinforced (nil if never).
	LastReinforcedAt *time.Time

	// ExpiresAt excludes the memory from search once passed (nil if none).
	ExpiresAt *time.Time

	// DeletedAt marks the memory soft-deleted (nil means active).
	DeletedAt *time.Time

	// Similarity is the raw cosine similarity from search operations.
	// Populated only on search results.
	Similarity float64
}

// Relation represents a directed, typed, weighted edge between two memories.
//
// A relation is unique per (SourceID, TargetID, Type); re-creating the same
// triple overwrites strength and metadata in place.
type Relation struct {
	// ID is the unique identifier of the relation.
	ID int64

	// SourceID is the memory the edge points from.
	SourceID int64

	// TargetID is the memory the edge points to. Never equal to SourceID.
	TargetID int64

	// Type is the free-form relation tag (e.g. "related_to", "supports").
	Type string

	// Strength is the edge weight (0.0-1.0).
	Strength float64

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the relation was first created.
	CreatedAt time.Time

	// UpdatedAt is when the relation was last upserted.
	UpdatedAt time.Time

	// Direction is the edge direction relative to the queried memory
	// ("outgoing" or "incoming"). Populated only on RelationsByMemory
	// results.
	Direction string

	// PeerID is the opposite endpoint relative to the queried memory.
	// Populated only on RelationsByMemory results.
	PeerID int64

	// PeerContent is the opposite endpoint's content, denormalized for
	// direct display. Populated only on RelationsByMemory results.
	PeerContent string

	// PeerSummary is the opposite endpoint's summary.
	// Populated only on RelationsByMemory results.
	PeerSummary string
}

// AccessEvent is an immutable ledger entry recording one retrieval.
//
// Inserting an access event atomically increments the target memory's
// access_count and refreshes last_accessed_at to the event time. Backends
// must apply both writes in a single transaction.
type AccessEvent struct {
	// ID is the unique identifier of the event.
	ID int64

	// MemoryID is the memory that was accessed.
	MemoryID int64

	// AccessType is how the memory was accessed
	// (search, recall, reinforce, relate).
	AccessType string

	// Query is the query text that retrieved the memory (optional).
	Query string

	// Similarity is the similarity score at retrieval time (optional).
	Similarity float64

	// CreatedAt is the event time. The target memory's last_accessed_at
	// is set to this value.
	CreatedAt time.Time
}

// Access types recorded in the ledger.
const (
	AccessSearch    = "search"
	AccessRecall    = "recall"
	AccessReinforce = "reinforce"
	AccessRelate    = "relate"
)

// Relation directions for RelationsByMemory.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
	DirectionBoth     = "both"
)

// SearchOptions contains options for similarity search.
type SearchOptions struct {
	// Limit bounds the candidate pool returned, ordered by similarity
	// descending. Backends never return more than Limit candidates.
	Limit int

	// Tags filters candidates to those carrying at least one of the
	// given tags (logical OR). Empty means no tag filtering.
	Tags []string

	// Source filters candidates to an exact source label.
	// Empty means no source filtering.
	Source string

	// ExcludeID removes one memory from the candidate set, used by
	// related-memory lookups to exclude the memory itself.
	ExcludeID int64
}

// ForgetCriteria selects memories for bulk forgetting. Supplied filters
// combine with logical AND; at least one must be set.
type ForgetCriteria struct {
	// Tags matches memories carrying at least one of the given tags.
	Tags []string

	// OlderThanDays matches memories whose last access (or creation,
	// if never accessed) is older than this many days. Zero disables.
	OlderThanDays int

	// MaxImportance matches memories with importance strictly below
	// this value. Zero disables.
	MaxImportance float64

	// Soft selects soft deletion (deleted_at marker) instead of
	// physical removal.
	Soft bool
}

// Store defines the interface for durable memory storage backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement
// this interface. Implementations are safe for concurrent use.
type Store interface {
	// Insert inserts a new memory.
	Insert(ctx context.Context, memory *Memory) error

	// Get retrieves a memory by ID, including soft-deleted rows.
	// Returns ErrNotFound if the row does not exist.
	Get(ctx context.Context, id int64) (*Memory, error)

	// Search returns up to opts.Limit active (non-deleted, non-expired)
	// memories ordered by raw cosine similarity descending, with the
	// Similarity field populated.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Memory, error)

	// Reinforce applies a reinforcement as one atomic unit: importance
	// is set to newImportance, reinforcement_count increments, and both
	// last_reinforced_at and last_accessed_at move to now. Returns the
	// updated memory, or ErrNotFound if the row is absent or soft-deleted.
	Reinforce(ctx context.Context, id int64, newImportance float64, now time.Time) (*Memory, error)

	// SetImportance overwrites importance only, leaving access and
	// reinforcement state untouched. Returns ErrNotFound if the row is
	// absent or soft-deleted.
	SetImportance(ctx context.Context, id int64, importance float64) (*Memory, error)

	// SoftDelete marks a memory deleted. Idempotent; returns the number
	// of rows affected (0 if already deleted or absent).
	SoftDelete(ctx context.Context, id int64) (int64, error)

	// HardDelete physically removes a memory and cascades its relations
	// and access events. Idempotent; returns the number of rows affected.
	HardDelete(ctx context.Context, id int64) (int64, error)

	// ForgetByCriteria applies a single bulk soft or hard delete over all
	// active memories matching the criteria. Returns the count affected.
	ForgetByCriteria(ctx context.Context, criteria *ForgetCriteria) (int64, error)

	// UpsertRelation inserts a relation or, when the (source, target,
	// type) triple already exists, overwrites its strength and metadata.
	UpsertRelation(ctx context.Context, relation *Relation) (*Relation, error)

	// RelationsByMemory returns the edges touching a memory in the given
	// direction, with the opposite endpoint denormalized. Edges whose
	// peer is soft-deleted are excluded.
	RelationsByMemory(ctx context.Context, id int64, direction string) ([]*Relation, error)

	// DeleteRelation removes an exact (source, target, type) edge and
	// reports whether anything was removed.
	DeleteRelation(ctx context.Context, sourceID, targetID int64, relationType string) (bool, error)

	// RecordAccess appends access events to the ledger. Each event insert
	// and its coupled access_count/last_accessed_at update are applied in
	// one transaction.
	RecordAccess(ctx context.Context, events []*AccessEvent) error

	// Close closes the store and releases resources.
	Close() error
}
