// classifier/pkg/compiler/parser.go

package compiler

import (
	"rgehrsitz/classifier/pkg/analysis"
	"rgehrsitz/classifier/pkg/logging"
)

// conjunction joining a clause to the one before it.
type conjunction int

const (
	conjNone conjunction = iota
	conjAnd
	conjOr
)

// modifier prefixed to a clause.
type modifier int

const (
	modNone modifier = iota
	modRequired
	modProhibited
)

// QueryParser turns query strings into QueryNode trees. Unscoped terms bind
// to DefaultField.
type QueryParser struct {
	DefaultField string
	Analyzer     *analysis.Analyzer
}

func NewQueryParser(defaultField string, analyzer *analysis.Analyzer) *QueryParser {
	if analyzer == nil {
		analyzer = analysis.New()
	}
	return &QueryParser{DefaultField: defaultField, Analyzer: analyzer}
}

// Parse parses one query. The result is never nil on success; a query
// whose terms all analyze away yields an empty boolean node, which matches
// nothing.
func (p *QueryParser) Parse(query string) (*QueryNode, error) {
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	ps := &parseState{parser: p, tokens: tokens}

	node, err := ps.parseQuery(p.DefaultField)
	if err != nil {
		return nil, err
	}
	if tok := ps.peek(); tok.Type != tokEOF {
		return nil, syntaxErrorf(tok.Offset, "unexpected %s", tok.Type)
	}
	if node == nil {
		logging.Logger.Debug().Str("query", query).Msg("Query has no searchable terms")
		return NewBoolean(), nil
	}
	return simplify(node), nil
}

type parseState struct {
	parser *QueryParser
	tokens []token
	pos    int
}

func (ps *parseState) peek() token {
	return ps.tokens[ps.pos]
}

func (ps *parseState) peekAt(n int) token {
	if ps.pos+n >= len(ps.tokens) {
		return ps.tokens[len(ps.tokens)-1]
	}
	return ps.tokens[ps.pos+n]
}

func (ps *parseState) next() token {
	tok := ps.tokens[ps.pos]
	if tok.Type != tokEOF {
		ps.pos++
	}
	return tok
}

// parseQuery reads clauses until ')' or the end of input. It returns nil
// when no clause produced a node.
//
//	query := [modifiers] clause ( [conjunction] [modifiers] clause )*
func (ps *parseState) parseQuery(field string) (*QueryNode, error) {
	var clauses []Clause
	first := true
	for {
		tok := ps.peek()
		if tok.Type == tokEOF || tok.Type == tokRParen {
			if first {
				return nil, syntaxErrorf(tok.Offset, "expected a clause, found %s", tok.Type)
			}
			break
		}

		conj := conjNone
		if !first {
			switch tok.Type {
			case tokAnd:
				conj = conjAnd
				ps.next()
			case tokOr:
				conj = conjOr
				ps.next()
			}
		} else if tok.Type == tokAnd || tok.Type == tokOr {
			return nil, syntaxErrorf(tok.Offset, "query cannot start with %s", tok.Type)
		}

		mods := ps.parseModifiers()
		node, err := ps.parseClause(field)
		if err != nil {
			return nil, err
		}
		clauses = addClause(clauses, conj, mods, node)
		first = false
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	return NewBoolean(clauses...), nil
}

func (ps *parseState) parseModifiers() modifier {
	switch ps.peek().Type {
	case tokPlus:
		ps.next()
		return modRequired
	case tokMinus, tokNot:
		ps.next()
		return modProhibited
	}
	return modNone
}

// addClause applies the classic rules: AND makes both neighbours required
// unless prohibited, otherwise clauses are optional.
func addClause(clauses []Clause, conj conjunction, mods modifier, node *QueryNode) []Clause {
	if len(clauses) > 0 && conj == conjAnd {
		last := &clauses[len(clauses)-1]
		if last.Occur != MustNot {
			last.Occur = Must
		}
	}
	if node == nil {
		return clauses
	}

	required := mods == modRequired
	prohibited := mods == modProhibited
	if conj == conjAnd && !prohibited {
		required = true
	}

	occur := Should
	switch {
	case prohibited:
		occur = MustNot
	case required:
		occur = Must
	}
	return append(clauses, Clause{Occur: occur, Node: node})
}

// parseClause reads one clause. A field prefix applies to everything the
// clause holds, and *:* matches every record.
//
//	clause := [ term ':' ] ( term | phrase | '(' query ')' ) [ '^' boost ]
func (ps *parseState) parseClause(field string) (*QueryNode, error) {
	if tok := ps.peek(); tok.Type == tokTerm && ps.peekAt(1).Type == tokColon {
		if isMatchAll(tok, ps.peekAt(2)) {
			ps.next()
			ps.next()
			ps.next()
			if ps.peek().Type == tokBoost {
				ps.next()
			}
			return NewMatchAll(), nil
		}
		if tok.Wild {
			return nil, syntaxErrorf(tok.Offset, "field name %q contains a wildcard", tok.Raw)
		}
		field = tok.Text
		ps.next()
		ps.next()
	}

	tok := ps.next()
	var node *QueryNode
	switch tok.Type {
	case tokTerm:
		node = ps.termNode(field, tok)
	case tokPhrase:
		node = ps.phraseNode(field, tok.Text)
	case tokLParen:
		inner, err := ps.parseQuery(field)
		if err != nil {
			return nil, err
		}
		if closing := ps.next(); closing.Type != tokRParen {
			return nil, syntaxErrorf(closing.Offset, "expected ')' to close '(' at offset %d, found %s", tok.Offset, closing.Type)
		}
		node = inner
	case tokColon:
		return nil, syntaxErrorf(tok.Offset, "missing field name before ':'")
	case tokEOF:
		return nil, syntaxErrorf(tok.Offset, "expected a term, found %s", tok.Type)
	default:
		return nil, syntaxErrorf(tok.Offset, "unexpected %s", tok.Type)
	}

	// Boosts only affect scoring, which classification does not use.
	if ps.peek().Type == tokBoost {
		ps.next()
	}
	return node, nil
}

func isMatchAll(name, value token) bool {
	return name.Wild && name.Raw == "*" && value.Type == tokTerm && value.Wild && value.Raw == "*"
}

// termNode analyzes a bare term. A term that splits into several tokens
// becomes a group of optional terms.
func (ps *parseState) termNode(field string, tok token) *QueryNode {
	if tok.Wild {
		return NewWildcard(field, ps.parser.Analyzer.Normalize(tok.Raw))
	}
	terms := ps.parser.Analyzer.Terms(tok.Text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return NewTerm(field, terms[0])
	}
	clauses := make([]Clause, len(terms))
	for i, t := range terms {
		clauses[i] = Clause{Occur: Should, Node: NewTerm(field, t)}
	}
	return NewBoolean(clauses...)
}

func (ps *parseState) phraseNode(field, text string) *QueryNode {
	terms := ps.parser.Analyzer.Terms(text)
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return NewTerm(field, terms[0])
	}
	return NewPhrase(field, terms...)
}
