// classifier/tools/rule_gen/main.go

package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/schollz/progressbar/v3"

	"rgehrsitz/classifier/pkg/compiler"
)

// Category is one generated rule.
type Category struct {
	Name  string
	Query string
}

var fields = []string{"text", "title", "body", "author", "tags"}

func parseFlags(args []string) (int, string) {
	fs := flag.NewFlagSet("rule_gen", flag.ExitOnError)
	numCategories := fs.Int("categories", 1000, "Number of categories to generate")
	outputFile := fs.String("output", "generated_categories.properties", "Output file name")
	fs.Parse(args)
	return *numCategories, *outputFile
}

// word returns a lower case fake word made only of letters, so it survives
// analysis as a single token and never collides with an operator keyword.
func word() string {
	w := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, gofakeit.Noun())
	if w == "" {
		return "word"
	}
	return w
}

func fieldPrefix() string {
	if rand.Float32() < 0.5 {
		return ""
	}
	return fields[rand.Intn(len(fields))] + ":"
}

func generateLeaf() string {
	switch rand.Intn(4) {
	case 0:
		return fmt.Sprintf(`%s"%s %s"`, fieldPrefix(), word(), gofakeit.Adjective())
	case 1:
		w := word()
		n := len(w)/2 + 1
		if n > len(w) {
			n = len(w)
		}
		return fieldPrefix() + w[:n] + "*"
	default:
		return fieldPrefix() + word()
	}
}

func generateQuery(depth int) string {
	if depth > 2 || rand.Float32() < 0.4 {
		return generateLeaf()
	}

	left := generateQuery(depth + 1)
	right := generateQuery(depth + 1)
	var q string
	switch rand.Intn(5) {
	case 0:
		q = left + " AND " + right
	case 1:
		q = left + " OR " + right
	case 2:
		q = "+" + left + " -" + right
	case 3:
		q = left + " AND NOT " + right
	default:
		q = left + " " + right
	}
	if depth > 0 {
		return "(" + q + ")"
	}
	return q
}

func generateCategories(n int, bar *progressbar.ProgressBar) []Category {
	categories := make([]Category, n)
	for i := range categories {
		categories[i] = Category{
			Name:  fmt.Sprintf("category%d", i+1),
			Query: generateQuery(0),
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	return categories
}

// renderCategories writes categories in properties syntax. The generator
// key contains a '.' so the classifier skips it.
func renderCategories(categories []Category) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# generated by rule_gen\nrule_gen.count=%d\n", len(categories))
	for _, c := range categories {
		fmt.Fprintf(&buf, "%s=%s\n", c.Name, c.Query)
	}
	return buf.Bytes()
}

func writeCategoriesToFile(categories []Category, filename string) error {
	if err := os.WriteFile(filename, renderCategories(categories), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", filename, err)
	}
	return nil
}

// checkCategories compiles the generated source and returns the diagnostics.
func checkCategories(categories []Category) ([]compiler.Diagnostic, error) {
	_, diagnostics, err := compiler.NewCompiler(compiler.DefaultField, nil).Compile(renderCategories(categories))
	return diagnostics, err
}

func main() {
	numCategories, outputFile := parseFlags(os.Args[1:])

	bar := progressbar.Default(int64(numCategories), "generating categories")
	categories := generateCategories(numCategories, bar)

	diagnostics, err := checkCategories(categories)
	if err != nil {
		fmt.Printf("Error compiling generated categories: %v\n", err)
		os.Exit(1)
	}
	for _, d := range diagnostics {
		fmt.Printf("Warning: %s: %s\n", d.CategoryKey, d.Message)
	}

	if err := writeCategoriesToFile(categories, outputFile); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d categories. Saved to %s\n", numCategories, outputFile)
}
