// Package phonetic matches misheard words against a known vocabulary using
// Double Metaphone codes with Jaro-Winkler ranking.
//
// A vocabulary term becomes a candidate when any of its Double Metaphone
// codes overlaps with a code of the input; candidates are then ranked by
// Jaro-Winkler similarity on the original strings. When nothing overlaps
// phonetically, a stricter pure-similarity fallback still catches close
// spellings. Multi-word terms are handled by comparing per-token codes and
// by scoring the space-stripped concatenation, which covers speech-to-text
// splitting one term into several words ("go routine").
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score a phonetic
// candidate needs to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the pure
// similarity fallback used when no phonetic candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher aligns words against an interview's technical vocabulary. It
// implements [transcript.TermMatcher] and is read-only after construction,
// so it is safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary term most phonetically similar to word. word
// may be a single token or a space-separated phrase. When matched is false,
// corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	input := strings.ToLower(strings.TrimSpace(word))
	if input == "" || len(vocabulary) == 0 {
		return word, 0, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := metaphoneCodes(inputTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range vocabulary {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)
		score := similarity(input, termLower, inputTokens, termTokens)

		if overlaps(inputCodes, metaphoneCodes(termTokens)) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestTerm, bestScore, bestPhonetic = term, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			bestTerm, bestScore = term, score
		}
	}

	if bestTerm == "" {
		return word, 0, false
	}
	return bestTerm, bestScore, true
}

// similarity is the best Jaro-Winkler score across full strings, the
// space-stripped concatenations, and all token pairs.
func similarity(input, term string, inputTokens, termTokens []string) float64 {
	score := matchr.JaroWinkler(input, term, false)
	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		if joined > score {
			score = joined
		}
	}
	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}

// metaphoneCodes returns the union of Double Metaphone codes for all tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
