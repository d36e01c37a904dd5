// classifier/pkg/runtime/index.go

package runtime

import (
	"slices"

	"rgehrsitz/classifier/pkg/analysis"
)

// Record is one set of named text fields to classify.
type Record map[string]string

// fieldIndex maps each token of one field to its ascending positions.
type fieldIndex map[string][]int

// recordIndex is a tiny inverted index scoped to a single record. It is
// built once per evaluation and shared by every category.
type recordIndex map[string]fieldIndex

func buildIndex(analyzer *analysis.Analyzer, record Record) recordIndex {
	idx := make(recordIndex, len(record))
	for field, text := range record {
		tf := analyzer.TokenizeField(field, text)
		fi := make(fieldIndex, len(tf.Tokens))
		for _, tok := range tf.Tokens {
			fi[tok.Term] = append(fi[tok.Term], tok.Position)
		}
		idx[field] = fi
	}
	return idx
}

func (idx recordIndex) has(field, term string) bool {
	_, ok := idx[field][term]
	return ok
}

// hasPhrase reports whether terms occur at consecutive positions in field.
func (idx recordIndex) hasPhrase(field string, terms []string) bool {
	fi, ok := idx[field]
	if !ok || len(terms) == 0 {
		return false
	}
	for _, start := range fi[terms[0]] {
		matched := true
		for offset, term := range terms[1:] {
			if !containsPosition(fi[term], start+offset+1) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func containsPosition(positions []int, want int) bool {
	_, found := slices.BinarySearch(positions, want)
	return found
}
