// classifier/pkg/validator/validator.go

// Package validator checks compiled categories for problems the parser
// cannot see, such as queries that can never match a record.
package validator

import (
	"fmt"
	"strings"
	"unicode"

	"rgehrsitz/classifier/pkg/compiler"
)

// Finding is a problem with one category. The category still takes part in
// classification.
type Finding struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// ValidateName checks that name can be used as a category key in a
// properties source without being mistaken for a setting.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("category name must not be empty")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("category name %q must not contain '.'", name)
	}
	if strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '=' || r == ':'
	}) >= 0 {
		return fmt.Errorf("category name %q must not contain whitespace, '=' or ':'", name)
	}
	return nil
}

// ValidateCategory returns an error if c can never match.
func ValidateCategory(c *compiler.Category) error {
	if c.Query == nil || !canMatch(c.Query) {
		return fmt.Errorf("query %q can never match", c.RawSource)
	}
	return nil
}

// Lint validates every category of rs, in name order.
func Lint(rs *compiler.RuleSet) []Finding {
	var findings []Finding
	for _, c := range rs.Categories() {
		if err := ValidateCategory(c); err != nil {
			findings = append(findings, Finding{Category: c.Name, Message: err.Error()})
		}
	}
	return findings
}

func canMatch(node *compiler.QueryNode) bool {
	switch node.Kind {
	case compiler.KindTerm:
		return node.Token != ""
	case compiler.KindPhrase:
		return len(node.Tokens) > 0
	case compiler.KindWildcard:
		return node.Pattern != ""
	case compiler.KindMatchAll:
		return true
	case compiler.KindBoolean:
		hasMust, anyShould := false, false
		for _, cl := range node.Clauses {
			switch cl.Occur {
			case compiler.Must:
				if !canMatch(cl.Node) {
					return false
				}
				hasMust = true
			case compiler.Should:
				if canMatch(cl.Node) {
					anyShould = true
				}
			}
		}
		return hasMust || anyShould
	}
	return false
}
