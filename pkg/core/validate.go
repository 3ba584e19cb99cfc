package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Input bounds enforced before anything reaches the store.
const (
	// maxContentBytes bounds memory content (8 KiB).
	maxContentBytes = 8 * 1024

	// maxTags bounds the number of tags per memory.
	maxTags = 16

	// maxTagLength bounds the length of a single tag.
	maxTagLength = 64

	// maxMetadataBytes bounds the JSON-encoded metadata payload (4 KiB).
	maxMetadataBytes = 4 * 1024
)

// reservedMetadataKeys are rejected outright to keep metadata safe to
// round-trip through JSON consumers.
var reservedMetadataKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// normalizeContent trims surrounding whitespace and enforces the content
// bound. Returns the normalized content.
func normalizeContent(op, content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", validationError(op, "content is empty")
	}
	if len(trimmed) > maxContentBytes {
		return "", validationError(op, fmt.Sprintf("content exceeds %d bytes", maxContentBytes))
	}
	return trimmed, nil
}

// normalizeTags lowercases, trims, and deduplicates tags, preserving first
// occurrence order. Empty tags are dropped; oversized tags and oversized
// tag sets are rejected.
func normalizeTags(op string, tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if len(t) > maxTagLength {
			return nil, validationError(op, fmt.Sprintf("tag %q exceeds %d characters", t, maxTagLength))
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		normalized = append(normalized, t)
	}

	if len(normalized) > maxTags {
		return nil, validationError(op, fmt.Sprintf("more than %d tags", maxTags))
	}
	if len(normalized) == 0 {
		return nil, nil
	}
	return normalized, nil
}

// validateMetadata rejects unsafe keys and oversized payloads. Keys must be
// non-empty, free of dots, not start with '$', and not collide with JSON
// prototype machinery.
func validateMetadata(op string, metadata map[string]interface{}) error {
	if len(metadata) == 0 {
		return nil
	}

	for key := range metadata {
		if strings.TrimSpace(key) == "" {
			return validationError(op, "metadata key is empty")
		}
		if reservedMetadataKeys[key] {
			return validationError(op, fmt.Sprintf("metadata key %q is reserved", key))
		}
		if strings.HasPrefix(key, "$") {
			return validationError(op, fmt.Sprintf("metadata key %q starts with '$'", key))
		}
		if strings.Contains(key, ".") {
			return validationError(op, fmt.Sprintf("metadata key %q contains '.'", key))
		}
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return validationError(op, fmt.Sprintf("metadata is not JSON-encodable: %v", err))
	}
	if len(encoded) > maxMetadataBytes {
		return validationError(op, fmt.Sprintf("metadata exceeds %d bytes", maxMetadataBytes))
	}
	return nil
}

// validateImportance checks the 0.0-1.0 range.
func validateImportance(op string, importance float64) error {
	if importance < 0 || importance > 1 {
		return validationError(op, fmt.Sprintf("importance %.3f out of range [0, 1]", importance))
	}
	return nil
}

// validateStrength checks the 0.0-1.0 range for relation strength.
func validateStrength(op string, strength float64) error {
	if strength < 0 || strength > 1 {
		return validationError(op, fmt.Sprintf("strength %.3f out of range [0, 1]", strength))
	}
	return nil
}

// validateEmbedding checks a caller-supplied embedding against the
// configured dimension.
func validateEmbedding(op string, embedding []float64, dims int) error {
	if len(embedding) != dims {
		return validationError(op, fmt.Sprintf("embedding has %d dimensions, expected %d", len(embedding), dims))
	}
	return nil
}
