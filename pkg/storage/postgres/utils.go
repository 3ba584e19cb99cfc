package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
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

// vectorToString converts a vector to pgvector text format: "[0.1,0.2,...]".
func vectorToString(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector parses pgvector text format back into a slice.
func parseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vector := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector: %w", err)
		}
		vector[i] = v
	}
	return vector, nil
}

// scanMemory scans a memory row without the similarity column.
func scanMemory(scanner rowScanner) (*storage.Memory, error) {
	return scanMemoryInto(scanner, false)
}

// scanMemoryWithSimilarity scans a memory row with a trailing similarity
// column from search queries.
func scanMemoryWithSimilarity(scanner rowScanner) (*storage.Memory, error) {
	return scanMemoryInto(scanner, true)
}

func scanMemoryInto(scanner rowScanner, withSimilarity bool) (*storage.Memory, error) {
	var (
		memory       storage.Memory
		embeddingStr string
		tagsStr      string
		metadataStr  sql.NullString
		lastAccessed sql.NullTime
		lastReinf    sql.NullTime
		expiresAt    sql.NullTime
		deletedAt    sql.NullTime
	)

	dest := []interface{}{
		&memory.ID,
		&memory.Content,
		&memory.Summary,
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
	}
	if withSimilarity {
		dest = append(dest, &memory.Similarity)
	}

	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	embedding, err := parseVector(embeddingStr)
	if err != nil {
		return nil, err
	}
	memory.Embedding = embedding

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
		&relation.PeerSummary,
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

// encodeMemoryFields JSON-encodes the tags and metadata columns.
func encodeMemoryFields(memory *storage.Memory) (tags, metadata string, err error) {
	memoryTags := memory.Tags
	if memoryTags == nil {
		memoryTags = []string{}
	}
	tagsJSON, err := json.Marshal(memoryTags)
	if err != nil {
		return "", "", err
	}

	metadataJSON, err := encodeJSON(memory.Metadata)
	if err != nil {
		return "", "", err
	}

	return string(tagsJSON), metadataJSON, nil
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
