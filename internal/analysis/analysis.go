// Package analysis implements the text analysis applied to text fields, both when
// candidate documents are indexed and when match queries are analyzed at store time.
//
// Both sides must use the same analysis or extracted terms would never line up with
// the terms present in a candidate document.
package analysis

import (
	"strings"
	"unicode"
)

// DefaultMaxTokenLen is the maximum token length in runes. Longer tokens are split.
const DefaultMaxTokenLen = 255

// Token is a single analyzed token with its position in the token stream.
type Token struct {
	Term     string
	Position int
}

// IterTokens calls fn for each token in text. Tokens are maximal runs of letters and
// digits, lowercased. If fn returns false, iteration stops early.
func IterTokens(text string, fn func(tok Token) bool) {
	var (
		sb    strings.Builder
		n     int
		pos   int
		runes int
	)

	flush := func() bool {
		if sb.Len() == 0 {
			return true
		}
		ok := fn(Token{Term: sb.String(), Position: pos})
		pos++
		n++
		sb.Reset()
		runes = 0
		return ok
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if runes == DefaultMaxTokenLen && !flush() {
				return
			}
			sb.WriteRune(unicode.ToLower(r))
			runes++
			continue
		}
		if !flush() {
			return
		}
	}
	flush()
}

// Analyze returns the tokens of text in order.
func Analyze(text string) []Token {
	var tokens []Token
	IterTokens(text, func(tok Token) bool {
		tokens = append(tokens, tok)
		return true
	})
	return tokens
}

// Terms returns the terms of text in order, including duplicates.
func Terms(text string) []string {
	var terms []string
	IterTokens(text, func(tok Token) bool {
		terms = append(terms, tok.Term)
		return true
	})
	return terms
}
