package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/engram-ai/engram-go/pkg/storage"
)

// memoryColumns is the canonical column list for memory selects.
const memoryColumns = `id, content, summary, embedding, tags, source, metadata,
	importance, access_count, reinforcement_count,
	created_at, last_accessed_at, last_reinforced_at, expires_at, deleted_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans a memory from a row or rows cursor.
func scanMemory(scanner rowScanner) (*storage.Memory, error) {
	var (
		memory       storage.Memory
		summary      sql.NullString
		embeddingStr string
		tagsStr      string
		metadataStr  sql.NullString
		lastAccessed sql.NullTime
		lastReinf    sql.NullTime
		expiresAt    sql.NullTime
		deletedAt    sql.NullTime
	)

	err := scanner.Scan(
		&memory.ID,
		&memory.Content,
		&summary,
		&embeddingStr,
		&tagsStr,
		&memory.Source,
		&metadataStr,
		&memory.Importance,
		&memory.AccessCount,
		&memory.ReinforcementCount,
		&memory.CreatedAt,
		&lastAccessed,
		&lastReinf,
		&expiresAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	memory.Summary = summary.String

	if err := json.Unmarshal([]byte(embeddingStr), &memory.Embedding); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsStr), &memory.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &memory.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	if lastAccessed.Valid {
		memory.LastAccessedAt = &lastAccessed.Time
	}
	if lastReinf.Valid {
		memory.LastReinforcedAt = &lastReinf.Time
	}
	if expiresAt.Valid {
		memory.ExpiresAt = &expiresAt.Time
	}
	if deletedAt.Valid {
		memory.DeletedAt = &deletedAt.Time
	}

	return &memory, nil
}

// scanRelation scans a bare relation row.
func scanRelation(scanner rowScanner) (*storage.Relation, error) {
	var (
		relation    storage.Relation
		metadataStr sql.NullString
	)

	err := scanner.Scan(
		&relation.ID,
		&relation.SourceID,
		&relation.TargetID,
		&relation.Type,
		&relation.Strength,
		&metadataStr,
		&relation.CreatedAt,
		&relation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &relation.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return &relation, nil
}

// scanRelationWithPeer scans a relation row joined with its peer memory.
func scanRelationWithPeer(scanner rowScanner) (*storage.Relation, error) {
	var (
		relation    storage.Relation
		metadataStr sql.NullString
		peerSummary sql.NullString
	)

	err := scanner.Scan(
		&relation.ID,
		&relation.SourceID,
		&relation.TargetID,
		&relation.Type,
		&relation.Strength,
		&metadataStr,
		&relation.CreatedAt,
		&relation.UpdatedAt,
		&relation.PeerID,
		&relation.PeerContent,
		&peerSummary,
	)
	if err != nil {
		return nil, err
	}

	relation.PeerSummary = peerSummary.String

	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &relation.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return &relation, nil
}

// encodeMemoryFields JSON-encodes the embedding, tags, and metadata columns.
func encodeMemoryFields(memory *storage.Memory) (embedding, tags, metadata string, err error) {
	embeddingJSON, err := json.Marshal(memory.Embedding)
	if err != nil {
		return "", "", "", err
	}

	memoryTags := memory.Tags
	if memoryTags == nil {
		memoryTags = []string{}
	}
	tagsJSON, err := json.Marshal(memoryTags)
	if err != nil {
		return "", "", "", err
	}

	metadataJSON, err := encodeJSON(memory.Metadata)
	if err != nil {
		return "", "", "", err
	}

	return string(embeddingJSON), string(tagsJSON), metadataJSON, nil
}

// encodeJSON marshals a metadata map, using "{}" for nil.
func encodeJSON(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// nullableTime converts *time.Time to a driver-friendly value.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// escapeLike neutralizes LIKE pattern characters in a literal value.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topBySimilarity sorts memories by similarity descending and truncates to
// limit. Limit <= 0 returns the full sorted set.
func topBySimilarity(memories []*storage.Memory, limit int) []*storage.Memory {
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Similarity > memories[j].Similarity
	})

	if limit > 0 && len(memories) > limit {
		return memories[:limit]
	}
	return memories
}
