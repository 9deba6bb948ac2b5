// Package policy implements the admission gate every incoming query passes
// through before any provider, translator, or engine ever sees it.
package policy

import (
	"context"
	"fmt"

	"github.com/QWED-AI/qwed-verification/internal/logging"
)

// BlockReason names which admission layer rejected a query and why.
type BlockReason struct {
	Layer  int
	Name   string
	Detail string
}

func (r BlockReason) String() string {
	return fmt.Sprintf("layer %d (%s): %s", r.Layer, r.Name, r.Detail)
}

// Decision is the gate's verdict on a single query.
type Decision struct {
	Allowed bool
	Reason  BlockReason
	// Cleaned is the query with zero-width/invisible characters stripped.
	// It is what downstream translators and engines see, regardless of
	// whether any earlier layer blocked on the original form.
	Cleaned string
}

// layer is one ordered admission check. It returns blocked=true and a
// human-readable detail when it rejects input; it never mutates input.
type layer struct {
	name  string
	check func(ctx context.Context, input string) (blocked bool, detail string)
}

// Gate runs a query through the seven ordered admission layers, first
// match wins. No engine call happens on a blocked request.
type Gate struct {
	layers []layer
	logger *logging.Logger
}

// Config tunes the optional layers that need external collaborators or
// thresholds to function; every field has a safe disabled-by-default zero
// value so Gate works fully with an empty Config.
type Config struct {
	MaxInputLength int
	// Similarity is consulted by the semantic-similarity layer; nil
	// disables that layer rather than failing open on every request.
	Similarity SimilarityChecker
	// SimilarityThreshold is the score at or above which a query is blocked.
	SimilarityThreshold float64
}

// DefaultConfig matches the documented default input length cap.
func DefaultConfig() Config {
	return Config{MaxInputLength: 2000, SimilarityThreshold: 0.92}
}

// New builds a Gate with all seven layers wired in their fixed order.
func New(cfg Config, logger *logging.Logger) *Gate {
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = 2000
	}
	g := &Gate{logger: logger}
	g.layers = []layer{
		{name: "length_cap", check: lengthCapLayer(cfg.MaxInputLength)},
		{name: "heuristic_patterns", check: heuristicPatternsLayer},
		{name: "base64_scan", check: base64ScanLayer},
		{name: "semantic_similarity", check: semanticSimilarityLayer(cfg.Similarity, cfg.SimilarityThreshold)},
		{name: "extended_lexicon", check: extendedLexiconLayer},
		{name: "mixed_script", check: mixedScriptLayer},
		{name: "zero_width", check: zeroWidthLayer},
	}
	return g
}

// Admit runs query through every layer in order. The first layer to block
// short-circuits the rest; every block is logged as a SecurityEvent and no
// downstream caller ever sees an un-admitted query.
func (g *Gate) Admit(ctx context.Context, tenantID, query string) Decision {
	for i, l := range g.layers {
		blocked, detail := l.check(ctx, query)
		if blocked {
			reason := BlockReason{Layer: i + 1, Name: l.name, Detail: detail}
			g.logBlock(ctx, tenantID, query, reason)
			return Decision{Allowed: false, Reason: reason}
		}
	}
	return Decision{Allowed: true, Cleaned: stripInvisible(query)}
}

func (g *Gate) logBlock(ctx context.Context, tenantID, query string, reason BlockReason) {
	if g.logger == nil {
		return
	}
	excerpt := query
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	g.logger.LogSecurityEvent(ctx, "admission_blocked", map[string]interface{}{
		"tenant_id":    tenantID,
		"layer":        reason.Layer,
		"layer_name":   reason.Name,
		"detail":       reason.Detail,
		"query_length": len(query),
		"excerpt":      excerpt,
	})
}
