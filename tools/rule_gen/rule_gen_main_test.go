// classifier/tools/rule_gen/rule_gen_main_test.go

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/classifier/pkg/compiler"
)

func TestParseFlags(t *testing.T) {
	numCategories, outputFile := parseFlags([]string{})
	assert.Equal(t, 1000, numCategories)
	assert.Equal(t, "generated_categories.properties", outputFile)

	numCategories, outputFile = parseFlags([]string{"-categories", "500", "-output", "custom.properties"})
	assert.Equal(t, 500, numCategories)
	assert.Equal(t, "custom.properties", outputFile)
}

func TestWord(t *testing.T) {
	for i := 0; i < 50; i++ {
		w := word()
		assert.NotEmpty(t, w)
		assert.Equal(t, strings.ToLower(w), w)
		assert.NotContains(t, w, " ")
	}
}

func TestGenerateCategories(t *testing.T) {
	categories := generateCategories(200, nil)

	require.Len(t, categories, 200)
	for i, c := range categories {
		assert.Equal(t, fmt.Sprintf("category%d", i+1), c.Name)
		assert.NotEmpty(t, c.Query)
	}

	diagnostics, err := checkCategories(categories)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
}

func TestGenerateQueryParses(t *testing.T) {
	parser := compiler.NewQueryParser(compiler.DefaultField, nil)
	for i := 0; i < 200; i++ {
		q := generateQuery(0)
		_, err := parser.Parse(q)
		assert.NoError(t, err, q)
	}
}

func TestWriteCategoriesToFile(t *testing.T) {
	categories := []Category{
		{Name: "alpha", Query: "shabbadoo"},
		{Name: "beta", Query: `title:"unexpected journey" AND NOT jour*`},
	}
	path := filepath.Join(t.TempDir(), "generated.properties")

	require.NoError(t, writeCategoriesToFile(categories, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	rs, diagnostics, err := compiler.NewCompiler(compiler.DefaultField, nil).Compile(content)
	require.NoError(t, err)
	assert.Empty(t, diagnostics)
	assert.Equal(t, []string{"alpha", "beta"}, rs.Names())

	beta, ok := rs.Category("beta")
	require.True(t, ok)
	assert.Equal(t, `title:"unexpected journey" AND NOT jour*`, beta.RawSource)
}

func TestWriteCategoriesToFileError(t *testing.T) {
	err := writeCategoriesToFile(nil, filepath.Join(t.TempDir(), "missing", "out.properties"))
	assert.Error(t, err)
}
