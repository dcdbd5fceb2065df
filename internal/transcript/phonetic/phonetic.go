// Package phonetic matches misrecognised words against a list of known hint
// terms using Double Metaphone encoding combined with Jaro-Winkler
// similarity.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidates: Double Metaphone codes are computed for every
//     token of the input and of each term. A term sharing any code with the
//     input is a phonetic candidate and is accepted above the phonetic
//     threshold (default 0.70).
//
//  2. Fuzzy fallback: when no phonetic candidate qualifies, pure Jaro-Winkler
//     similarity is tested against all terms with the higher fuzzy threshold
//     (default 0.85).
//
// [Matcher.Snap] applies the matcher across a whole transcript, replacing
// word windows (including words the recogniser split, e.g. "post gres")
// with the canonical spelling of the matching term.
package phonetic

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching term. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
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

// Match finds the term most similar to phrase. phrase may be a single word
// or a space-separated window. When matched is false, corrected equals
// phrase and score is 0.
func (m *Matcher) Match(phrase string, terms []string) (corrected string, score float64, matched bool) {
	if len(terms) == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	lower := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(lower)
	inputCodes := codesForTokens(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range terms {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)
		s := similarity(tokens, termTokens, lower, termLower)

		if codesOverlap(inputCodes, codesForTokens(termTokens)) {
			if s >= m.phoneticThreshold && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = term, s, true
			}
		} else if !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore {
			best, bestScore = term, s
		}
	}

	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// Replacement records one substitution made by [Matcher.Snap].
type Replacement struct {
	Original string
	Term     string
	Score    float64
}

// Snap replaces word windows in text that match a term with the term's
// canonical spelling. Windows span up to one word more than the longest term
// so that split words can be rejoined.
//
// At each position the best-scoring window wins, ties going to the longer
// one. A multi-word window is skipped when the text starting at the next word
// matches at least as well, so a match never swallows a preceding word.
// Leading and trailing punctuation of the window is preserved.
func (m *Matcher) Snap(text string, terms []string) (string, []Replacement) {
	tokens := strings.Fields(text)
	maxWords := 0
	for _, t := range terms {
		maxWords = max(maxWords, len(strings.Fields(t)))
	}
	if len(tokens) == 0 || maxWords == 0 {
		return text, nil
	}
	maxWords++

	out := make([]string, 0, len(tokens))
	var reps []Replacement
	for i := 0; i < len(tokens); {
		n, term, score := m.bestWindow(tokens, i, maxWords, terms)
		if n > 1 {
			if _, _, next := m.bestWindow(tokens, i+1, maxWords, terms); next >= score {
				n = 0
			}
		}
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}

		lead, _, _ := splitPunct(tokens[i])
		_, _, trail := splitPunct(tokens[i+n-1])
		out = append(out, lead+term+trail)
		reps = append(reps, Replacement{Original: strings.Join(tokens[i:i+n], " "), Term: term, Score: score})
		i += n
	}
	return strings.Join(out, " "), reps
}

// bestWindow returns the length, term, and score of the best matching window
// starting at tokens[i], or n == 0 when nothing matches.
func (m *Matcher) bestWindow(tokens []string, i, maxWords int, terms []string) (n int, term string, score float64) {
	for size := 1; size <= maxWords && i+size <= len(tokens); size++ {
		words := make([]string, 0, size)
		for _, tok := range tokens[i : i+size] {
			if _, core, _ := splitPunct(tok); core != "" {
				words = append(words, core)
			}
		}
		if len(words) == 0 {
			continue
		}
		t, s, ok := m.Match(strings.Join(words, " "), terms)
		if ok && s >= score {
			n, term, score = size, t, s
		}
	}
	return n, term, score
}

// splitPunct separates leading and trailing non-alphanumeric runes of tok.
func splitPunct(tok string) (lead, core, trail string) {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(tok, isWord)
	if start < 0 {
		return tok, "", ""
	}
	end := strings.LastIndexFunc(tok, isWord)
	_, size := utf8.DecodeRuneInString(tok[end:])
	end += size
	return tok[:start], tok[start:end], tok[end:]
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
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

// similarity is the highest Jaro-Winkler score of: the full strings, the
// strings with spaces removed, and (for equal word counts) the mean of the
// position-wise word scores.
func similarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false)
		score = max(score, joined)
	}

	if len(inputTokens) > 1 && len(inputTokens) == len(termTokens) {
		var sum float64
		for i := range inputTokens {
			sum += matchr.JaroWinkler(inputTokens[i], termTokens[i], false)
		}
		score = max(score, sum/float64(len(inputTokens)))
	}
	return score
}
