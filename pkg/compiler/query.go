// classifier/pkg/compiler/query.go
package compiler

import (
	"strconv"
	"strings"
)

// NodeKind tags the variant held by a QueryNode.
type NodeKind uint8

const (
	KindTerm NodeKind = iota
	KindPhrase
	KindWildcard
	KindBoolean
	KindMatchAll
)

func (k NodeKind) String() string {
	switch k {
	case KindTerm:
		return "term"
	case KindPhrase:
		return "phrase"
	case KindWildcard:
		return "wildcard"
	case KindBoolean:
		return "boolean"
	case KindMatchAll:
		return "match all"
	default:
		return "unknown"
	}
}

// Occur says how a clause takes part in its boolean node.
type Occur uint8

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "MUST"
	case MustNot:
		return "MUST_NOT"
	default:
		return "SHOULD"
	}
}

// QueryNode is a compiled rule. Only the fields belonging to Kind are set:
//
//	KindTerm     Field, Token
//	KindPhrase   Field, Tokens (at least two)
//	KindWildcard Field, Pattern
//	KindBoolean  Clauses
//	KindMatchAll nothing
type QueryNode struct {
	Kind    NodeKind
	Field   string
	Token   string
	Tokens  []string
	Pattern string
	Clauses []Clause
}

type Clause struct {
	Occur Occur
	Node  *QueryNode
}

func NewTerm(field, token string) *QueryNode {
	return &QueryNode{Kind: KindTerm, Field: field, Token: token}
}

func NewPhrase(field string, tokens ...string) *QueryNode {
	return &QueryNode{Kind: KindPhrase, Field: field, Tokens: tokens}
}

func NewWildcard(field, pattern string) *QueryNode {
	return &QueryNode{Kind: KindWildcard, Field: field, Pattern: pattern}
}

func NewBoolean(clauses ...Clause) *QueryNode {
	return &QueryNode{Kind: KindBoolean, Clauses: clauses}
}

// NewMatchAll returns the node for *:*, which matches every record.
func NewMatchAll() *QueryNode {
	return &QueryNode{Kind: KindMatchAll}
}

// String renders the node in query syntax, with + and - marking MUST and
// MUST_NOT clauses. Phrases are quoted.
func (n *QueryNode) String() string {
	var b strings.Builder
	n.write(&b, false)
	return b.String()
}

func (n *QueryNode) write(b *strings.Builder, nested bool) {
	switch n.Kind {
	case KindTerm:
		b.WriteString(n.Field + ":" + n.Token)
	case KindPhrase:
		b.WriteString(n.Field + ":" + strconv.Quote(strings.Join(n.Tokens, " ")))
	case KindWildcard:
		b.WriteString(n.Field + ":" + n.Pattern)
	case KindMatchAll:
		b.WriteString("*:*")
	case KindBoolean:
		if nested {
			b.WriteByte('(')
		}
		for i, c := range n.Clauses {
			if i > 0 {
				b.WriteByte(' ')
			}
			switch c.Occur {
			case Must:
				b.WriteByte('+')
			case MustNot:
				b.WriteByte('-')
			}
			c.Node.write(b, true)
		}
		if nested {
			b.WriteByte(')')
		}
	}
}
