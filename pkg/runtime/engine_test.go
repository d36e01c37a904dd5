// classifier/pkg/runtime/engine_test.go

package runtime

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/classifier/pkg/analysis"
	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/metrics"
)

type staticRules struct {
	rs *compiler.RuleSet
}

func (s staticRules) Snapshot() *compiler.RuleSet {
	return s.rs
}

func compileSource(t *testing.T, source string) *compiler.RuleSet {
	t.Helper()
	rs, _, err := compiler.NewCompiler(compiler.DefaultField, nil).Compile([]byte(source))
	require.NoError(t, err)
	return rs
}

func compileTestCategories(t *testing.T) *compiler.RuleSet {
	t.Helper()
	data, err := os.ReadFile("../../testdata/testcategories.properties")
	require.NoError(t, err)
	return compileSource(t, string(data))
}

func TestEvaluateTestCategories(t *testing.T) {
	rs := compileTestCategories(t)
	record := Record{
		"text":  "elbows shoulders knees and toes",
		"title": "an unexpected journey",
	}

	result := Evaluate(analysis.New(), record, rs)
	assert.Equal(t, []string{"positiveTest1", "positiveTest2", "positiveTest3", "positiveTest4"}, result)
}

func TestEvaluateIsSubsetOfCategories(t *testing.T) {
	rs := compileTestCategories(t)
	records := []Record{
		{},
		{"text": "ankles"},
		{"text": "elbows", "unknown": "whatever"},
		{"title": "journey unexpected", "text": "wrists and toes"},
	}

	names := rs.Names()
	for _, record := range records {
		for _, name := range Evaluate(analysis.New(), record, rs) {
			assert.Contains(t, names, name)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		record   Record
		expected []string
	}{
		{
			name:     "Term in default field",
			source:   "alpha=shabbadoo",
			record:   Record{"text": "Shabbadoo babbaloo"},
			expected: []string{"alpha"},
		},
		{
			name:     "Term in missing field",
			source:   "alpha=title:shabbadoo",
			record:   Record{"text": "shabbadoo"},
			expected: []string{},
		},
		{
			name:     "Phrase needs adjacency",
			source:   "adjacent=\"quick fox\"\nordered=\"brown quick\"\nexact=\"quick brown fox\"",
			record:   Record{"text": "the quick brown fox"},
			expected: []string{"exact"},
		},
		{
			name:     "Phrase with repeated tokens",
			source:   "alpha=\"a b a c\"",
			record:   Record{"text": "a b a b a c"},
			expected: []string{"alpha"},
		},
		{
			name:     "Wildcards",
			source:   "leading=*ney\nsingle=j?urney\nnone=x*\nall=title:*",
			record:   Record{"text": "journey", "title": "anything"},
			expected: []string{"all", "leading", "single"},
		},
		{
			name:     "Match all",
			source:   "all=*:*\nallButToes=*:* -toes\nallButKnees=*:* -knees",
			record:   Record{"text": "knees"},
			expected: []string{"all", "allButToes"},
		},
		{
			name:     "Match all on an empty record",
			source:   "all=*:*\nelbows=elbows",
			record:   Record{},
			expected: []string{"all"},
		},
		{
			name:     "Must and should",
			source:   "alpha=+elbows toes\nbeta=+elbows +toes\ngamma=+elbows fingers",
			record:   Record{"text": "elbows"},
			expected: []string{"alpha", "gamma"},
		},
		{
			name:     "Should only needs one",
			source:   "alpha=fingers toes\nbeta=fingers thumbs",
			record:   Record{"text": "toes"},
			expected: []string{"alpha"},
		},
		{
			name:     "Must not excludes",
			source:   "alpha=elbows -toes\nbeta=elbows NOT knees",
			record:   Record{"text": "elbows toes"},
			expected: []string{"beta"},
		},
		{
			name:     "Only prohibited clauses match nothing",
			source:   "alpha=-elbows\nbeta=NOT toes",
			record:   Record{"text": "knees"},
			expected: []string{},
		},
		{
			name:     "Query without terms matches nothing",
			source:   "alpha=...",
			record:   Record{"text": "..."},
			expected: []string{},
		},
		{
			name:     "Nested groups",
			source:   "alpha=(elbows OR wrists) AND title:(journey -unexpected)\nbeta=(elbows OR wrists) AND title:(journey -expected)",
			record:   Record{"text": "wrists", "title": "an unexpected journey"},
			expected: []string{"beta"},
		},
		{
			name:     "Empty record",
			source:   "alpha=elbows",
			record:   Record{},
			expected: []string{},
		},
		{
			name:     "Case and width folding",
			source:   "alpha=title:ＪＯＵＲＮＥＹ",
			record:   Record{"title": "Journey"},
			expected: []string{"alpha"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := compileSource(t, tt.source)
			assert.Equal(t, tt.expected, Evaluate(analysis.New(), tt.record, rs))
		})
	}
}

func TestEvaluateEmptyRuleSet(t *testing.T) {
	assert.Equal(t, []string{}, Evaluate(analysis.New(), Record{"text": "x"}, compiler.EmptyRuleSet()))
	assert.Equal(t, []string{}, Evaluate(analysis.New(), Record{"text": "x"}, nil))
}

func TestEngineClassifyUsesSnapshot(t *testing.T) {
	rs := compileTestCategories(t)
	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(nil, staticRules{rs: rs}, m)

	result := engine.Classify(Record{"text": "elbows"})
	assert.Equal(t, []string{"negativeTest2", "positiveTest1"}, result)

	result = engine.Classify(Record{"text": "elbows toes"})
	assert.Equal(t, []string{"positiveTest1"}, result)
	assert.Equal(t, []string{"text", "title"}, engine.Fields())
}

func TestEvaluateDoesNotMutateRuleSet(t *testing.T) {
	rs := compileTestCategories(t)
	before := rs.Categories()
	snapshot := make([]string, len(before))
	for i, c := range before {
		snapshot[i] = c.Query.String()
	}

	Evaluate(analysis.New(), Record{"text": "elbows knees toes", "title": "journey"}, rs)

	for i, c := range rs.Categories() {
		assert.Equal(t, snapshot[i], c.Query.String())
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	rs := compileTestCategories(t)
	record := Record{
		"text":  "elbows shoulders knees and toes",
		"title": "an unexpected journey",
	}
	expected := []string{"positiveTest1", "positiveTest2", "positiveTest3", "positiveTest4"}

	done := make(chan []string)
	for i := 0; i < 16; i++ {
		go func() {
			done <- Evaluate(analysis.New(), record, rs)
		}()
	}
	timeout := time.After(5 * time.Second)
	for i := 0; i < 16; i++ {
		select {
		case got := <-done:
			assert.Equal(t, expected, got)
		case <-timeout:
			t.Fatal("concurrent evaluations did not finish")
		}
	}
}
