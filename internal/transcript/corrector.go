package transcript

import (
	"strings"
)

// Corrector rewrites a finalized candidate utterance before it enters the
// transcript. Implementations must be safe for concurrent use.
type Corrector interface {
	Correct(text string) string
}

// TermMatcher aligns one word or short phrase against a known vocabulary.
// When matched is false, corrected equals the input unchanged and confidence
// is 0. Implemented by [phonetic.Matcher].
type TermMatcher interface {
	Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool)
}

// VocabularyCorrector fixes misheard domain terms in candidate answers.
// Speech-to-text reliably garbles technical vocabulary ("cube and eighties"
// for "Kubernetes", "go routine" for "goroutine"), which would poison both
// the reviewable transcript and any downstream evaluation. Terms come from
// the interview's question set and job description.
type VocabularyCorrector struct {
	matcher    TermMatcher
	vocabulary []string
	maxNGram   int
}

// NewVocabularyCorrector builds a corrector over the given vocabulary. The
// maximum phrase window adapts to the longest multi-word term.
func NewVocabularyCorrector(matcher TermMatcher, vocabulary []string) *VocabularyCorrector {
	maxN := 1
	for _, term := range vocabulary {
		if n := len(strings.Fields(term)); n > maxN {
			maxN = n
		}
	}
	return &VocabularyCorrector{
		matcher:    matcher,
		vocabulary: vocabulary,
		maxNGram:   maxN,
	}
}

// Correct implements [Corrector]. It scans the text with sliding windows
// from the widest phrase down to single words, replacing the first match for
// any position; replaced tokens are not revisited by narrower windows.
func (c *VocabularyCorrector) Correct(text string) string {
	if len(c.vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	tokens := strings.Fields(text)
	replaced := make([]bool, len(tokens))

	for width := c.maxNGram; width >= 1; width-- {
		for i := 0; i+width <= len(tokens); i++ {
			if anyReplaced(replaced[i : i+width]) {
				continue
			}
			window := strings.Join(tokens[i:i+width], " ")
			corrected, _, matched := c.matcher.Match(stripPunct(window), c.vocabulary)
			if !matched || strings.EqualFold(corrected, stripPunct(window)) {
				continue
			}
			// Keep trailing punctuation from the last token of the window.
			tokens[i] = corrected + trailingPunct(tokens[i+width-1])
			for j := i + 1; j < i+width; j++ {
				tokens[j] = ""
			}
			for j := i; j < i+width; j++ {
				replaced[j] = true
			}
		}
	}

	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

func anyReplaced(window []bool) bool {
	for _, r := range window {
		if r {
			return true
		}
	}
	return false
}

func stripPunct(s string) string {
	return strings.TrimRight(s, ".,;:!?")
}

func trailingPunct(s string) string {
	return s[len(stripPunct(s)):]
}
