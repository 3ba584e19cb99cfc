package core

import "time"

// Memory represents a single memory stored in the system.
//
// A memory carries its text content, the embedding used for semantic
// search, a normalized tag set, and the strength state (importance,
// access and reinforcement counters) that drives hybrid ranking and
// forgetting.
type Memory struct {
	// ID is the unique identifier of the memory. Immutable.
	ID int64 `json:"id"`

	// Content is the text content of the memory. Never empty.
	Content string `json:"content"`

	// Summary is an optional short summary of the content.
	Summary string `json:"summary,omitempty"`

	// Embedding is the vector embedding for similarity search.
	// Omitted from JSON to reduce payload size.
	Embedding []float64 `json:"embedding,omitempty"`

	// Tags is the normalized tag set (lowercase, bounded).
	Tags []string `json:"tags,omitempty"`

	// Source is an optional free-text label for the memory's origin.
	Source string `json:"source,omitempty"`

	// Metadata contains additional structured information. Keys are
	// sanitized on write; the payload is size-bounded.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Importance is the significance weight (0.0-1.0, default 0.5).
	// Raised by reinforcement, lowered by decay, always clamped.
	Importance float64 `json:"importance"`

	// AccessCount is the number of recorded accesses. Monotonic.
	AccessCount int64 `json:"access_count"`

	// ReinforcementCount is the number of reinforcements. Monotonic.
	ReinforcementCount int64 `json:"reinforcement_count"`

	// CreatedAt is when the memory was created. Immutable.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt is when the memory was last retrieved (nil if
	// never). Drives recency decay.
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// LastReinforcedAt is when the memory was last reinforced.
	LastReinforcedAt *time.Time `json:"last_reinforced_at,omitempty"`

	// ExpiresAt excludes the memory from retrieval once passed.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// DeletedAt marks the memory soft-deleted: invisible to search,
	// recall, and relation traversal, but still physically present.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Similarity is the raw cosine similarity from search operations.
	Similarity float64 `json:"similarity,omitempty"`

	// Score is the hybrid rank score from search operations: weighted
	// similarity and recency, scaled by the importance multiplier.
	Score float64 `json:"score,omitempty"`
}

// recencyAnchor returns the timestamp recency decay is measured from:
// the last access, or creation if the memory was never accessed.
func (m *Memory) recencyAnchor() time.Time {
	if m.LastAccessedAt != nil {
		return *m.LastAccessedAt
	}
	return m.CreatedAt
}

// Relation is a directed, typed, weighted edge between two memories.
//
// Relations are unique per (source, target, type); upserting an existing
// triple overwrites strength and metadata in place. Self-loops are
// rejected at creation.
type Relation struct {
	// ID is the unique identifier of the relation.
	ID int64 `json:"id"`

	// SourceID is the memory the edge points from.
	SourceID int64 `json:"source_id"`

	// TargetID is the memory the edge points to.
	TargetID int64 `json:"target_id"`

	// Type is the free-form relation tag (e.g. "related_to",
	// "derived_from", "supports", "contradicts").
	Type string `json:"relation_type"`

	// Strength is the edge weight (0.0-1.0, default 0.5).
	Strength float64 `json:"strength"`

	// Metadata contains additional structured information.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the relation was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the relation was last upserted.
	UpdatedAt time.Time `json:"updated_at"`

	// Direction is the edge direction relative to the queried memory
	// ("outgoing" or "incoming"). Set on Relations results.
	Direction string `json:"direction,omitempty"`

	// PeerID is the opposite endpoint relative to the queried memory.
	PeerID int64 `json:"peer_id,omitempty"`

	// PeerContent is the opposite endpoint's content, denormalized for
	// direct display.
	PeerContent string `json:"peer_content,omitempty"`

	// PeerSummary is the opposite endpoint's summary.
	PeerSummary string `json:"peer_summary,omitempty"`
}

// Relation directions accepted by Relations.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
	DirectionBoth     = "both"
)

// RecalledMemory is one entry of a merged recall result.
type RecalledMemory struct {
	*Memory

	// MatchedQuery is the query text (task or auxiliary context) that
	// produced this memory's best hybrid score across all sub-queries.
	MatchedQuery string `json:"matched_query"`
}

// RecallResult is the merged, deduplicated output of a multi-query recall.
type RecallResult struct {
	// Task is the primary task string the recall was gathered for.
	Task string `json:"task"`

	// Queries is the full set of query strings that were searched,
	// task first.
	Queries []string `json:"queries"`

	// Memories is the deduplicated result set, sorted by hybrid score
	// descending and truncated to the requested limit.
	Memories []*RecalledMemory `json:"memories"`
}
