package utils

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// TextProcessor provides utilities for processing text before it is sent to a model
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Drop bytes until the cut lands on a rune boundary
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// SanitizeUTF8 ensures the string contains only valid UTF-8 characters
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}

// Fold returns a case-folded copy of s suitable for caseless comparison.
// A Caser is stateful, so a fresh one is created per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsAnyKeyword reports whether text contains any of the keywords, ignoring case
func ContainsAnyKeyword(text string, keywords []string) (string, bool) {
	folded := Fold(text)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(folded, Fold(kw)) {
			return kw, true
		}
	}
	return "", false
}

// ContainsAnyWord is ContainsAnyKeyword restricted to whole words. A keyword
// of several words matches a run of consecutive words in text.
func ContainsAnyWord(text string, keywords []string) (string, bool) {
	words := splitWords(text)
	for _, kw := range keywords {
		want := splitWords(kw)
		if len(want) == 0 {
			continue
		}
		for i := 0; i+len(want) <= len(words); i++ {
			if equalWords(words[i:i+len(want)], want) {
				return kw, true
			}
		}
	}
	return "", false
}

func splitWords(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "with": {}, "from": {},
	"this": {}, "that": {}, "are": {}, "was": {}, "fwd": {}, "re": {}, "fw": {},
	"our": {}, "has": {}, "have": {}, "will": {}, "about": {}, "into": {}, "not": {},
}

// Keywords extracts a sorted, de-duplicated set of significant words from text
func Keywords(text string) []string {
	words := splitWords(text)

	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// WordSet returns the case-folded words of text
func WordSet(text string) map[string]struct{} {
	words := splitWords(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
