package core

import "time"

// addOptions holds optional parameters for Add.
type addOptions struct {
	summary    string
	tags       []string
	source     string
	metadata   map[string]interface{}
	importance float64
	hasImp     bool
	embedding  []float64
	expiresAt  *time.Time
}

// AddOption configures an Add call.
type AddOption func(*addOptions)

// WithSummary attaches a short summary to the memory.
func WithSummary(summary string) AddOption {
	return func(o *addOptions) {
		o.summary = summary
	}
}

// WithTags attaches tags to the memory. Tags are lowercased and
// deduplicated before storage.
func WithTags(tags ...string) AddOption {
	return func(o *addOptions) {
		o.tags = tags
	}
}

// WithSource labels where the memory came from.
func WithSource(source string) AddOption {
	return func(o *addOptions) {
		o.source = source
	}
}

// WithMetadata attaches structured metadata to the memory.
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(o *addOptions) {
		o.metadata = metadata
	}
}

// WithImportance sets the initial importance (0.0-1.0). Without this
// option the configured default applies.
func WithImportance(importance float64) AddOption {
	return func(o *addOptions) {
		o.importance = importance
		o.hasImp = true
	}
}

// WithEmbedding supplies a precomputed embedding, skipping the embedding
// provider. The vector must match the configured dimension.
func WithEmbedding(embedding []float64) AddOption {
	return func(o *addOptions) {
		o.embedding = embedding
	}
}

// WithExpiresAt excludes the memory from retrieval after the given time.
func WithExpiresAt(t time.Time) AddOption {
	return func(o *addOptions) {
		o.expiresAt = &t
	}
}

// searchOptions holds optional parameters for Search and GetRelated.
type searchOptions struct {
	limit    int
	tags     []string
	source   string
	minScore float64
	hasMin   bool
}

// SearchOption configures a Search or GetRelated call.
type SearchOption func(*searchOptions)

// WithLimit bounds the number of results. Defaults to 10.
func WithLimit(limit int) SearchOption {
	return func(o *searchOptions) {
		o.limit = limit
	}
}

// WithTagFilter restricts results to memories carrying at least one of
// the given tags.
func WithTagFilter(tags ...string) SearchOption {
	return func(o *searchOptions) {
		o.tags = tags
	}
}

// WithSourceFilter restricts results to an exact source label.
func WithSourceFilter(source string) SearchOption {
	return func(o *searchOptions) {
		o.source = source
	}
}

// WithMinScore overrides the hybrid-score threshold. Results scoring
// below it are dropped after ranking.
func WithMinScore(minScore float64) SearchOption {
	return func(o *searchOptions) {
		o.minScore = minScore
		o.hasMin = true
	}
}

// recallOptions holds optional parameters for Recall.
type recallOptions struct {
	contexts []string
	limit    int
	minScore float64
	hasMin   bool
	tags     []string
	source   string
}

// RecallOption configures a Recall call.
type RecallOption func(*recallOptions)

// WithContexts supplies auxiliary context strings searched alongside the
// task. At most 10 are used; extras are dropped silently.
func WithContexts(contexts ...string) RecallOption {
	return func(o *recallOptions) {
		o.contexts = contexts
	}
}

// WithRecallLimit bounds the merged result set. Defaults to 20.
func WithRecallLimit(limit int) RecallOption {
	return func(o *recallOptions) {
		o.limit = limit
	}
}

// WithRecallMinScore overrides the recall hybrid-score threshold
// (default 0.25).
func WithRecallMinScore(minScore float64) RecallOption {
	return func(o *recallOptions) {
		o.minScore = minScore
		o.hasMin = true
	}
}

// WithRecallTagFilter restricts recall to memories carrying at least one
// of the given tags.
func WithRecallTagFilter(tags ...string) RecallOption {
	return func(o *recallOptions) {
		o.tags = tags
	}
}

// WithRecallSourceFilter restricts recall to an exact source label.
func WithRecallSourceFilter(source string) RecallOption {
	return func(o *recallOptions) {
		o.source = source
	}
}

// reinforceOptions holds optional parameters for Reinforce.
type reinforceOptions struct {
	boost    float64
	hasBoost bool
}

// ReinforceOption configures a Reinforce call.
type ReinforceOption func(*reinforceOptions)

// WithBoost overrides the configured reinforcement boost.
func WithBoost(boost float64) ReinforceOption {
	return func(o *reinforceOptions) {
		o.boost = boost
		o.hasBoost = true
	}
}

// decayOptions holds optional parameters for Decay.
type decayOptions struct {
	factor    float64
	hasFactor bool
}

// DecayOption configures a Decay call.
type DecayOption func(*decayOptions)

// WithDecayFactor overrides the configured multiplicative decay factor.
// Must be in (0, 1].
func WithDecayFactor(factor float64) DecayOption {
	return func(o *decayOptions) {
		o.factor = factor
		o.hasFactor = true
	}
}

// forgetOptions holds the selection for Forget.
type forgetOptions struct {
	id            int64
	tags          []string
	olderThanDays int
	maxImportance float64
	soft          bool
}

// ForgetOption configures a Forget call. Exactly one of ForgetID or a
// criteria combination must be supplied.
type ForgetOption func(*forgetOptions)

// ForgetID targets a single memory by ID.
func ForgetID(id int64) ForgetOption {
	return func(o *forgetOptions) {
		o.id = id
	}
}

// ForgetTags selects memories carrying at least one of the given tags.
func ForgetTags(tags ...string) ForgetOption {
	return func(o *forgetOptions) {
		o.tags = tags
	}
}

// ForgetOlderThan selects memories whose last access (or creation, if
// never accessed) is older than the given number of days.
func ForgetOlderThan(days int) ForgetOption {
	return func(o *forgetOptions) {
		o.olderThanDays = days
	}
}

// ForgetBelowImportance selects memories with importance strictly below
// the given value.
func ForgetBelowImportance(maxImportance float64) ForgetOption {
	return func(o *forgetOptions) {
		o.maxImportance = maxImportance
	}
}

// ForgetSoft marks matches deleted instead of physically removing them.
// Soft-deleted memories disappear from retrieval but survive Get.
func ForgetSoft() ForgetOption {
	return func(o *forgetOptions) {
		o.soft = true
	}
}

// relateOptions holds optional parameters for Relate.
type relateOptions struct {
	strength    float64
	hasStrength bool
	metadata    map[string]interface{}
}

// RelateOption configures a Relate call.
type RelateOption func(*relateOptions)

// WithStrength sets the edge weight (0.0-1.0). Defaults to 0.5.
func WithStrength(strength float64) RelateOption {
	return func(o *relateOptions) {
		o.strength = strength
		o.hasStrength = true
	}
}

// WithRelationMetadata attaches structured metadata to the edge.
func WithRelationMetadata(metadata map[string]interface{}) RelateOption {
	return func(o *relateOptions) {
		o.metadata = metadata
	}
}
