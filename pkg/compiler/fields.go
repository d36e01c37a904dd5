// classifier/pkg/compiler/fields.go

package compiler

import "sort"

// CollectFields returns the sorted set of fields referenced by the leaves of
// every category in rs.
func CollectFields(rs *RuleSet) []string {
	set := make(map[string]struct{})
	for _, c := range rs.Categories() {
		for f := range leafFields(c.Query) {
			set[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// FieldIndex maps each field to the sorted names of the categories that
// reference it.
func FieldIndex(rs *RuleSet) map[string][]string {
	index := make(map[string][]string)
	for _, c := range rs.Categories() {
		for f := range leafFields(c.Query) {
			index[f] = append(index[f], c.Name)
		}
	}
	return index
}
