package services

import (
	"sort"
	"strings"
	"unicode"
)

// Token is a single word extracted from text, with its byte offsets in
// the source string.
type Token struct {
	Text  string
	Start int
	End   int
}

// HighlightSpan marks a matched region of a field value. Presentation
// metadata only, never an input to relevance scoring.
type HighlightSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Token string `json:"token"`
}

// TextAnalyzer provides tokenization and fuzzy matching for full-text
// search. This is a domain service that encapsulates text processing
// logic shared by scoring and highlighting.
type TextAnalyzer struct {
	caseSensitive bool
}

// NewTextAnalyzer creates a text analyzer. When caseSensitive is false,
// tokens are folded to lower case.
func NewTextAnalyzer(caseSensitive bool) *TextAnalyzer {
	return &TextAnalyzer{caseSensitive: caseSensitive}
}

// Tokenize splits text on non-alphanumeric boundaries and returns the
// tokens in order of appearance with their source offsets.
func (ta *TextAnalyzer) Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, ta.token(text, start, i))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, ta.token(text, start, len(text)))
	}
	return tokens
}

func (ta *TextAnalyzer) token(text string, start, end int) Token {
	word := text[start:end]
	if !ta.caseSensitive {
		word = strings.ToLower(word)
	}
	return Token{Text: word, Start: start, End: end}
}

// Matches reports whether a query token matches a document token,
// either exactly or within the fuzzy edit-distance threshold.
func (ta *TextAnalyzer) Matches(queryToken, docToken string, fuzzy bool) bool {
	if queryToken == docToken {
		return true
	}
	if !fuzzy {
		return false
	}
	threshold := FuzzyThreshold(queryToken)
	if threshold == 0 {
		return false
	}
	return Levenshtein(queryToken, docToken) <= threshold
}

// FuzzyThreshold is the maximum edit distance at which a document token
// still matches a query token: 30% of the query token's length, rounded
// down.
func FuzzyThreshold(queryToken string) int {
	return int(0.3 * float64(len(queryToken)))
}

// Levenshtein computes the classic edit distance between two strings
// with unit cost for deletion, insertion and substitution.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// HighlightSpans locates literal and fuzzy occurrences of the query
// tokens within text and returns merged, non-overlapping spans in
// ascending order.
func (ta *TextAnalyzer) HighlightSpans(text string, queryTokens []Token, fuzzy bool) []HighlightSpan {
	docTokens := ta.Tokenize(text)
	var spans []HighlightSpan
	for _, dt := range docTokens {
		for _, qt := range queryTokens {
			if ta.Matches(qt.Text, dt.Text, fuzzy) {
				spans = append(spans, HighlightSpan{Start: dt.Start, End: dt.End, Token: dt.Text})
				break
			}
		}
	}
	return mergeSpans(spans)
}

// mergeSpans merges overlapping or adjacent spans, keeping ascending
// start order.
func mergeSpans(spans []HighlightSpan) []HighlightSpan {
	if len(spans) <= 1 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
				last.Token = last.Token + " " + s.Token
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
