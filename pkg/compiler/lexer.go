// classifier/pkg/compiler/lexer.go

package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokTerm
	tokPhrase
	tokColon
	tokLParen
	tokRParen
	tokPlus
	tokMinus
	tokNot
	tokAnd
	tokOr
	tokBoost
)

var tokenNames = map[tokenType]string{
	tokEOF:    "end of query",
	tokTerm:   "term",
	tokPhrase: "phrase",
	tokColon:  "':'",
	tokLParen: "'('",
	tokRParen: "')'",
	tokPlus:   "'+'",
	tokMinus:  "'-'",
	tokNot:    "NOT",
	tokAnd:    "AND",
	tokOr:     "OR",
	tokBoost:  "'^'",
}

func (t tokenType) String() string {
	return tokenNames[t]
}

// token is one lexeme. For terms, Text has escapes resolved and Raw keeps
// them; Wild is set when Raw holds an unescaped '*' or '?'.
type token struct {
	Type   tokenType
	Text   string
	Raw    string
	Wild   bool
	Offset int
}

// SyntaxError reports where a query failed to parse.
type SyntaxError struct {
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("at offset %d: %s", e.Offset, e.Message)
}

func syntaxErrorf(offset int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// lex splits a query string into tokens, always ending with tokEOF.
func lex(input string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		start := pos
		switch {
		case unicode.IsSpace(r):
			pos += size
		case r == '(':
			tokens = append(tokens, token{Type: tokLParen, Offset: start})
			pos += size
		case r == ')':
			tokens = append(tokens, token{Type: tokRParen, Offset: start})
			pos += size
		case r == ':':
			tokens = append(tokens, token{Type: tokColon, Offset: start})
			pos += size
		case r == '+':
			tokens = append(tokens, token{Type: tokPlus, Offset: start})
			pos += size
		case r == '-':
			tokens = append(tokens, token{Type: tokMinus, Offset: start})
			pos += size
		case r == '!':
			tokens = append(tokens, token{Type: tokNot, Offset: start})
			pos += size
		case strings.HasPrefix(input[pos:], "&&"):
			tokens = append(tokens, token{Type: tokAnd, Offset: start})
			pos += 2
		case strings.HasPrefix(input[pos:], "||"):
			tokens = append(tokens, token{Type: tokOr, Offset: start})
			pos += 2
		case r == '"':
			tok, next, err := lexPhrase(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next
		case r == '^':
			tok, next, err := lexBoost(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next
		case isUnsupported(r):
			return nil, syntaxErrorf(start, "unsupported syntax %q", r)
		default:
			tok, next, err := lexTerm(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next
		}
	}
	tokens = append(tokens, token{Type: tokEOF, Offset: len(input)})
	return tokens, nil
}

func lexPhrase(input string, pos int) (token, int, error) {
	start := pos
	pos++ // opening quote
	var b strings.Builder
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		switch r {
		case '\\':
			if pos+size >= len(input) {
				return token{}, 0, syntaxErrorf(pos, "escape character at end of query")
			}
			next, nsize := utf8.DecodeRuneInString(input[pos+size:])
			b.WriteRune(next)
			pos += size + nsize
		case '"':
			return token{Type: tokPhrase, Text: b.String(), Offset: start}, pos + size, nil
		default:
			b.WriteRune(r)
			pos += size
		}
	}
	return token{}, 0, syntaxErrorf(start, "unterminated phrase")
}

func lexBoost(input string, pos int) (token, int, error) {
	start := pos
	pos++
	end := pos
	for end < len(input) && (input[end] == '.' || (input[end] >= '0' && input[end] <= '9')) {
		end++
	}
	if end == pos {
		return token{}, 0, syntaxErrorf(start, "boost requires a number")
	}
	return token{Type: tokBoost, Text: input[pos:end], Offset: start}, end, nil
}

// lexTerm reads a bare word. '+' and '-' are part of a term once it has
// started; whitespace and the structural characters end it.
func lexTerm(input string, pos int) (token, int, error) {
	start := pos
	var text, raw strings.Builder
	wild := false
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if r == '\\' {
			if pos+size >= len(input) {
				return token{}, 0, syntaxErrorf(pos, "escape character at end of query")
			}
			next, nsize := utf8.DecodeRuneInString(input[pos+size:])
			text.WriteRune(next)
			raw.WriteRune(r)
			raw.WriteRune(next)
			pos += size + nsize
			continue
		}
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == ':' || r == '"' || r == '^' || r == '!' {
			break
		}
		if isUnsupported(r) {
			return token{}, 0, syntaxErrorf(pos, "unsupported syntax %q", r)
		}
		if r == '*' || r == '?' {
			wild = true
		}
		text.WriteRune(r)
		raw.WriteRune(r)
		pos += size
	}

	tok := token{Type: tokTerm, Text: text.String(), Raw: raw.String(), Wild: wild, Offset: start}
	if !wild && tok.Raw == tok.Text {
		switch tok.Text {
		case "AND":
			tok.Type = tokAnd
		case "OR":
			tok.Type = tokOr
		case "NOT":
			tok.Type = tokNot
		}
	}
	return tok, pos, nil
}

// Ranges, fuzzy matching and regular expressions are not part of the rule
// language.
func isUnsupported(r rune) bool {
	switch r {
	case '[', ']', '{', '}', '~', '/':
		return true
	}
	return false
}
