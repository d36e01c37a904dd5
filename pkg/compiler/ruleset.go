// classifier/pkg/compiler/ruleset.go

package compiler

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Category is a named rule.
type Category struct {
	Name      string
	Query     *QueryNode
	RawSource string
}

// RuleSet is an immutable set of compiled categories. Nothing in it changes
// after construction; a reload builds a new RuleSet.
type RuleSet struct {
	Version  string
	LoadedAt time.Time

	categories  map[string]*Category
	names       []string
	diagnostics []Diagnostic

	fieldsOnce sync.Once
	fields     []string
}

func newRuleSet(version string, loadedAt time.Time, categories map[string]*Category, diagnostics []Diagnostic) *RuleSet {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return &RuleSet{
		Version:     version,
		LoadedAt:    loadedAt,
		categories:  categories,
		names:       names,
		diagnostics: diagnostics,
	}
}

// NewRuleSet builds a RuleSet from already compiled categories. A later
// category replaces an earlier one with the same name.
func NewRuleSet(version string, loadedAt time.Time, categories ...*Category) *RuleSet {
	byName := make(map[string]*Category, len(categories))
	for _, c := range categories {
		byName[c.Name] = c
	}
	return newRuleSet(version, loadedAt, byName, nil)
}

// EmptyRuleSet has no categories and a zero LoadedAt.
func EmptyRuleSet() *RuleSet {
	return newRuleSet("", time.Time{}, map[string]*Category{}, nil)
}

func (rs *RuleSet) Len() int {
	return len(rs.names)
}

// Names returns the category names in sorted order.
func (rs *RuleSet) Names() []string {
	return slices.Clone(rs.names)
}

func (rs *RuleSet) Category(name string) (*Category, bool) {
	c, ok := rs.categories[name]
	return c, ok
}

// Categories returns the categories sorted by name.
func (rs *RuleSet) Categories() []*Category {
	out := make([]*Category, len(rs.names))
	for i, name := range rs.names {
		out[i] = rs.categories[name]
	}
	return out
}

// Diagnostics returns the rules that were dropped while compiling.
func (rs *RuleSet) Diagnostics() []Diagnostic {
	return slices.Clone(rs.diagnostics)
}

// Fields is CollectFields, computed once per RuleSet.
func (rs *RuleSet) Fields() []string {
	rs.fieldsOnce.Do(func() {
		rs.fields = CollectFields(rs)
	})
	return slices.Clone(rs.fields)
}
