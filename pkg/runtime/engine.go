// classifier/pkg/runtime/engine.go

package runtime

import (
	"path"
	"time"

	"rgehrsitz/classifier/pkg/analysis"
	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/metrics"
)

// Snapshotter hands out the RuleSet to evaluate against. store.RuleStore
// implements it.
type Snapshotter interface {
	Snapshot() *compiler.RuleSet
}

type Engine struct {
	analyzer *analysis.Analyzer
	rules    Snapshotter
	metrics  *metrics.Metrics
}

// NewEngine returns an Engine classifying against rules. m may be nil.
func NewEngine(analyzer *analysis.Analyzer, rules Snapshotter, m *metrics.Metrics) *Engine {
	if analyzer == nil {
		analyzer = analysis.New()
	}
	return &Engine{analyzer: analyzer, rules: rules, metrics: m}
}

// Classify evaluates record against the RuleSet active at the time of the
// call. A reload during the call does not affect its result.
func (e *Engine) Classify(record Record) []string {
	start := time.Now()
	rs := e.rules.Snapshot()
	matched := e.Evaluate(record, rs)
	e.metrics.ObserveEvaluation(time.Since(start), len(matched))

	logging.Logger.Debug().
		Str("version", rs.Version).
		Int("fields", len(record)).
		Strs("categories", matched).
		Msg("Classified record")
	return matched
}

// Fields returns the fields referenced by the active RuleSet.
func (e *Engine) Fields() []string {
	return e.rules.Snapshot().Fields()
}

// Evaluate returns the sorted names of the categories in rs whose query
// matches record. It has no side effects.
func (e *Engine) Evaluate(record Record, rs *compiler.RuleSet) []string {
	return Evaluate(e.analyzer, record, rs)
}

// Evaluate is the engine-free form of Engine.Evaluate.
func Evaluate(analyzer *analysis.Analyzer, record Record, rs *compiler.RuleSet) []string {
	matched := []string{}
	if rs == nil || rs.Len() == 0 {
		return matched
	}
	idx := buildIndex(analyzer, record)
	// Categories come back sorted by name, so matched is sorted too.
	for _, c := range rs.Categories() {
		if matches(c.Query, idx) {
			matched = append(matched, c.Name)
		}
	}
	return matched
}

func matches(node *compiler.QueryNode, idx recordIndex) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case compiler.KindTerm:
		return idx.has(node.Field, node.Token)
	case compiler.KindPhrase:
		return idx.hasPhrase(node.Field, node.Tokens)
	case compiler.KindWildcard:
		return matchesWildcard(node.Field, node.Pattern, idx)
	case compiler.KindBoolean:
		return matchesBoolean(node.Clauses, idx)
	case compiler.KindMatchAll:
		return true
	default:
		return false
	}
}

// matchesBoolean: every MUST clause must match and no MUST_NOT clause may.
// Without MUST clauses at least one SHOULD clause has to match. A node with
// only MUST_NOT clauses, or none at all, matches nothing.
func matchesBoolean(clauses []compiler.Clause, idx recordIndex) bool {
	hasMust := false
	var should []*compiler.QueryNode
	for _, c := range clauses {
		switch c.Occur {
		case compiler.Must:
			if !matches(c.Node, idx) {
				return false
			}
			hasMust = true
		case compiler.MustNot:
			if matches(c.Node, idx) {
				return false
			}
		default:
			should = append(should, c.Node)
		}
	}
	if hasMust {
		return true
	}
	for _, n := range should {
		if matches(n, idx) {
			return true
		}
	}
	return false
}

func matchesWildcard(field, pattern string, idx recordIndex) bool {
	for term := range idx[field] {
		ok, err := path.Match(pattern, term)
		if err != nil {
			return false
		}
		if ok {
			return true
		}
	}
	return false
}
