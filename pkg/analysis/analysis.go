// classifier/pkg/analysis/analysis.go

// Package analysis turns raw field text into normalized tokens. Rule literals
// and record fields go through the same Analyzer so that the forms agree.
package analysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token is a single normalized term and its 0-based position in the field.
type Token struct {
	Term     string
	Position int
}

// TokenizedField is the analysis result for one record field.
type TokenizedField struct {
	Field  string
	Tokens []Token
}

// Analyzer normalizes text with NFKC, folds case and splits on every rune
// that is neither a letter nor a digit. Combining marks stay attached to the
// token they follow.
type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

// Normalize applies the normalization steps without splitting.
func (a *Analyzer) Normalize(text string) string {
	// a Caser is not safe for concurrent use
	fold := cases.Fold()
	return fold.String(norm.NFKC.String(text))
}

// Tokenize returns the ordered tokens of text.
func (a *Analyzer) Tokenize(text string) []Token {
	normalized := a.Normalize(text)
	var tokens []Token
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tokens = append(tokens, Token{Term: b.String(), Position: len(tokens)})
		b.Reset()
	}
	for _, r := range normalized {
		if isTokenRune(r) || (b.Len() > 0 && unicode.Is(unicode.Mn, r)) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// Terms is Tokenize without positions.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// TokenizeField analyzes the value of a single named field.
func (a *Analyzer) TokenizeField(field, text string) TokenizedField {
	return TokenizedField{Field: field, Tokens: a.Tokenize(text)}
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
