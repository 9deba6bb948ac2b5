package policy

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode"
)

// lengthCapLayer rejects any query longer than the configured maximum.
func lengthCapLayer(maxLen int) func(context.Context, string) (bool, string) {
	return func(_ context.Context, input string) (bool, string) {
		if len([]rune(input)) > maxLen {
			return true, "input exceeds maximum length"
		}
		return false, ""
	}
}

// heuristicPatterns catches the common direct jailbreak phrasings.
var heuristicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(dan|jailbroken)`),
	regexp.MustCompile(`(?i)disregard\s+(your|any)\s+(guidelines|rules|restrictions)`),
	regexp.MustCompile(`(?i)reveal\s+your\s+(instructions|prompt)`),
}

func heuristicPatternsLayer(_ context.Context, input string) (bool, string) {
	for _, p := range heuristicPatterns {
		if p.MatchString(input) {
			return true, "matched jailbreak heuristic pattern"
		}
	}
	return false, ""
}

// base64Token matches candidate base64 substrings worth decoding: sixteen
// or more characters from the base64 alphabet, long enough that false
// positives on ordinary identifiers are rare.
var base64Token = regexp.MustCompile(`[A-Za-z0-9+/]{16,}={0,2}`)

// base64ScanLayer looks for base64-encoded tokens whose decoded form would
// itself have tripped the heuristic or extended-lexicon layers — a common
// obfuscation for smuggling a jailbreak phrase past naive substring checks.
func base64ScanLayer(ctx context.Context, input string) (bool, string) {
	for _, tok := range base64Token.FindAllString(input, -1) {
		decoded, err := base64.StdEncoding.DecodeString(tok)
		if err != nil {
			continue
		}
		text := string(decoded)
		if blocked, _ := heuristicPatternsLayer(ctx, text); blocked {
			return true, "base64-decoded token matched jailbreak pattern"
		}
		if blocked, _ := extendedLexiconLayer(ctx, text); blocked {
			return true, "base64-decoded token matched extended lexicon"
		}
	}
	return false, ""
}

// SimilarityChecker scores how close a query is to a canonical system
// prompt; a real implementation is an external collaborator (an embedding
// model or vector index) out of scope here. A nil checker disables the
// semantic-similarity layer rather than failing every request open or
// closed.
type SimilarityChecker interface {
	Score(ctx context.Context, query string) (float64, error)
}

func semanticSimilarityLayer(checker SimilarityChecker, threshold float64) func(context.Context, string) (bool, string) {
	return func(ctx context.Context, input string) (bool, string) {
		if checker == nil {
			return false, ""
		}
		score, err := checker.Score(ctx, input)
		if err != nil {
			// A failed similarity check is treated as inconclusive:
			// this layer passes the query on and lets later layers
			// decide instead of blocking on a transient collaborator
			// failure.
			return false, ""
		}
		if score >= threshold {
			return true, "semantic similarity to canonical system prompt above threshold"
		}
		return false, ""
	}
}

// extendedLexicon covers role-play and persona-hijack terms not already
// caught by the direct heuristic patterns.
var extendedLexicon = []string{
	"do anything now", "no restrictions", "unfiltered response",
	"pretend you are", "act as if you have no", "bypass your",
	"without any ethical", "hypothetically speaking, ignore",
	"roleplay as an ai with no",
}

func extendedLexiconLayer(_ context.Context, input string) (bool, string) {
	lower := strings.ToLower(input)
	for _, term := range extendedLexicon {
		if strings.Contains(lower, term) {
			return true, "matched extended jailbreak lexicon"
		}
	}
	return false, ""
}

// incompatibleScriptPairs lists script combinations that are almost never
// legitimate in a single query and are a known homoglyph-obfuscation
// technique.
var incompatibleScriptPairs = [][2]*unicode.RangeTable{
	{unicode.Latin, unicode.Cyrillic},
	{unicode.Latin, unicode.Greek},
}

func mixedScriptLayer(_ context.Context, input string) (bool, string) {
	present := make(map[int]bool)
	for _, r := range input {
		for i, pair := range incompatibleScriptPairs {
			if unicode.Is(pair[0], r) {
				present[2*i] = true
			}
			if unicode.Is(pair[1], r) {
				present[2*i+1] = true
			}
		}
	}
	for i := range incompatibleScriptPairs {
		if present[2*i] && present[2*i+1] {
			return true, "input mixes incompatible Unicode scripts"
		}
	}
	return false, ""
}

// invisibleRunes are zero-width or format characters with no legitimate
// role in a verification query; their presence is a classic delimiter- or
// filter-evasion trick.
func isInvisible(r rune) bool {
	if r == '﻿' || r == '​' || r == '‌' || r == '‍' || r == '⁠' {
		return true
	}
	return unicode.Is(unicode.Cf, r)
}

func zeroWidthLayer(_ context.Context, input string) (bool, string) {
	for _, r := range input {
		if isInvisible(r) {
			return true, "input contains zero-width or invisible characters"
		}
	}
	return false, ""
}

// stripInvisible removes zero-width/invisible characters, used to produce
// the cleaned query handed downstream on the (rare, since this layer
// blocks by default) admit path.
func stripInvisible(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if isInvisible(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
