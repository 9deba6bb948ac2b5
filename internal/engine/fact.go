package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/QWED-AI/qwed-verification/internal/provider"
)

// NLILabel is the entailment label an NLIChecker assigns a claim against a
// context passage.
type NLILabel string

const (
	NLISupported      NLILabel = "SUPPORTED"
	NLIRefuted        NLILabel = "REFUTED"
	NLINotEnoughInfo  NLILabel = "NOT_ENOUGH_INFO"
)

// NLIChecker is the external natural-language-inference collaborator the
// fact engine defers to. No concrete model-backed implementation ships
// here; KeywordNLIChecker is a bounded reference implementation used where
// no such collaborator is configured.
type NLIChecker interface {
	Check(ctx context.Context, claim, context string) (NLILabel, []Citation, error)
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?]\s+|\n+)`)
var wordSplit = regexp.MustCompile(`[A-Za-z0-9']+`)
var negationWords = map[string]bool{
	"not": true, "no": true, "never": true, "n't": true, "cannot": true, "isn't": true, "doesn't": true, "didn't": true,
}

// KeywordNLIChecker is a lexical-overlap heuristic: it finds the context
// sentence with the highest word overlap against the claim and compares
// negation presence between the two. It makes no semantic judgment beyond
// that and is meant as a bounded stand-in, not a substitute for a trained
// NLI model.
type KeywordNLIChecker struct {
	// OverlapThreshold is the minimum Jaccard overlap between claim and
	// sentence word sets before a verdict is ventured at all.
	OverlapThreshold float64
}

// NewKeywordNLIChecker builds a KeywordNLIChecker with a sensible default
// threshold.
func NewKeywordNLIChecker() *KeywordNLIChecker {
	return &KeywordNLIChecker{OverlapThreshold: 0.4}
}

func wordSet(s string) map[string]bool {
	words := map[string]bool{}
	for _, w := range wordSplit.FindAllString(strings.ToLower(s), -1) {
		words[w] = true
	}
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func hasNegation(words map[string]bool) bool {
	for w := range words {
		if negationWords[w] {
			return true
		}
	}
	return false
}

// Check implements NLIChecker.
func (k *KeywordNLIChecker) Check(ctx context.Context, claim, context string) (NLILabel, []Citation, error) {
	threshold := k.OverlapThreshold
	if threshold <= 0 {
		threshold = 0.4
	}
	claimWords := wordSet(claim)
	claimNegated := hasNegation(claimWords)

	bestScore := 0.0
	bestSentence := ""
	bestStart := -1
	searchFrom := 0
	for _, sentence := range sentenceSplit.Split(context, -1) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		score := jaccard(claimWords, wordSet(trimmed))
		if score > bestScore {
			bestScore = score
			bestSentence = trimmed
			if idx := strings.Index(context[searchFrom:], trimmed); idx >= 0 {
				bestStart = searchFrom + idx
			}
		}
		if idx := strings.Index(context[searchFrom:], trimmed); idx >= 0 {
			searchFrom += idx + len(trimmed)
		}
	}

	if bestScore < threshold || bestStart < 0 {
		return NLINotEnoughInfo, nil, nil
	}

	citation := Citation{Text: bestSentence, Start: bestStart, End: bestStart + len(bestSentence)}
	if hasNegation(wordSet(bestSentence)) != claimNegated {
		return NLIRefuted, []Citation{citation}, nil
	}
	return NLISupported, []Citation{citation}, nil
}

// FactAdapter asks an NLIChecker to label a claim against its context.
type FactAdapter struct {
	checker NLIChecker
}

// NewFactAdapter builds a FactAdapter. A nil checker falls back to
// KeywordNLIChecker.
func NewFactAdapter(checker NLIChecker) *FactAdapter {
	if checker == nil {
		checker = NewKeywordNLIChecker()
	}
	return &FactAdapter{checker: checker}
}

// Verify labels task.Claim against task.Context.
func (f *FactAdapter) Verify(ctx context.Context, task provider.FactVerdict) (Result, error) {
	started := time.Now()
	if strings.TrimSpace(task.Claim) == "" {
		err := errEmptyClaim
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	label, citations, err := f.checker.Check(ctx, task.Claim, task.Context)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	result := Result{Latency: time.Since(started), Payload: citations}
	switch label {
	case NLISupported:
		result.Verdict = VerdictSupported
		result.Confidence = 0.85
	case NLIRefuted:
		result.Verdict = VerdictRefuted
		result.Confidence = 0.85
	default:
		result.Verdict = VerdictNotEnoughInfo
		result.Confidence = 0.3
	}
	return result, nil
}
