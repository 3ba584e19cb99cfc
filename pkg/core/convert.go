package core

import "github.com/engram-ai/engram-go/pkg/storage"

// toStorageMemory converts a core Memory to its storage representation.
func toStorageMemory(m *Memory) *storage.Memory {
	if m == nil {
		return nil
	}
	return &storage.Memory{
		ID:                 m.ID,
		Content:            m.Content,
		Summary:            m.Summary,
		Embedding:          m.Embedding,
		Tags:               m.Tags,
		Source:             m.Source,
		Metadata:           m.Metadata,
		Importance:         m.Importance,
		AccessCount:        m.AccessCount,
		ReinforcementCount: m.ReinforcementCount,
		CreatedAt:          m.CreatedAt,
		LastAccessedAt:     m.LastAccessedAt,
		LastReinforcedAt:   m.LastReinforcedAt,
		ExpiresAt:          m.ExpiresAt,
		DeletedAt:          m.DeletedAt,
		Similarity:         m.Similarity,
	}
}

// fromStorageMemory converts a storage Memory to the core representation.
func fromStorageMemory(m *storage.Memory) *Memory {
	if m == nil {
		return nil
	}
	return &Memory{
		ID:                 m.ID,
		Content:            m.Content,
		Summary:            m.Summary,
		Embedding:          m.Embedding,
		Tags:               m.Tags,
		Source:             m.Source,
		Metadata:           m.Metadata,
		Importance:         m.Importance,
		AccessCount:        m.AccessCount,
		ReinforcementCount: m.ReinforcementCount,
		CreatedAt:          m.CreatedAt,
		LastAccessedAt:     m.LastAccessedAt,
		LastReinforcedAt:   m.LastReinforcedAt,
		ExpiresAt:          m.ExpiresAt,
		DeletedAt:          m.DeletedAt,
		Similarity:         m.Similarity,
	}
}

// fromStorageRelation converts a storage Relation to the core representation.
func fromStorageRelation(r *storage.Relation) *Relation {
	if r == nil {
		return nil
	}
	return &Relation{
		ID:          r.ID,
		SourceID:    r.SourceID,
		TargetID:    r.TargetID,
		Type:        r.Type,
		Strength:    r.Strength,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Direction:   r.Direction,
		PeerID:      r.PeerID,
		PeerContent: r.PeerContent,
		PeerSummary: r.PeerSummary,
	}
}
