// Package question classifies transcript segments as interviewer questions
// and assigns them stable per-session keys.
package question

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest text, in runes, that can be a question.
const MinLength = 10

// Lexicon holds the interrogative and request phrases that mark a question.
var Lexicon = []string{
	"how", "what", "why", "when", "where", "who",
	"tell", "describe", "explain",
	"can you", "would you", "do you",
}

var lexiconPattern = buildLexiconPattern(Lexicon)

func buildLexiconPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// IsQuestion reports whether text reads like something the candidate should answer.
// Any complete sentence counts, which deliberately over-triggers.
func IsQuestion(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < MinLength {
		return false
	}
	if strings.Contains(t, "?") {
		return true
	}
	if lexiconPattern.MatchString(t) {
		return true
	}
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?")
}
