// classifier/pkg/compiler/compiler.go

package compiler

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/magiconair/properties"

	"rgehrsitz/classifier/pkg/analysis"
	"rgehrsitz/classifier/pkg/logging"
)

// DefaultField is the field unscoped query terms bind to.
const DefaultField = "text"

// Diagnostic reports a rule that failed to compile.
type Diagnostic struct {
	CategoryKey string `json:"category"`
	Message     string `json:"message"`
}

// Compiler builds RuleSets from properties documents of category=query pairs.
type Compiler struct {
	parser *QueryParser
	now    func() time.Time
}

func NewCompiler(defaultField string, analyzer *analysis.Analyzer) *Compiler {
	if defaultField == "" {
		defaultField = DefaultField
	}
	return &Compiler{
		parser: NewQueryParser(defaultField, analyzer),
		now:    time.Now,
	}
}

func (c *Compiler) DefaultField() string {
	return c.parser.DefaultField
}

// Compile parses source and compiles every category in it. Keys containing a
// '.' are settings, not categories, and are skipped. A category whose query
// does not parse is left out and reported as a Diagnostic. The error is only
// set when source is not a readable properties document, in which case no
// RuleSet is returned.
func (c *Compiler) Compile(source []byte) (*RuleSet, []Diagnostic, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(source)
	if err != nil {
		return nil, nil, logging.NewError(logging.ErrorTypeSourceUnreadable, "Rule source is not a valid properties document", err, nil)
	}

	categories := make(map[string]*Category)
	var diagnostics []Diagnostic
	for _, key := range props.Keys() {
		if strings.Contains(key, ".") {
			logging.Logger.Debug().Str("key", key).Msg("Skipping settings key")
			continue
		}
		value, _ := props.Get(key)
		query, err := c.parser.Parse(value)
		if err != nil {
			logging.LogError(logging.Logger, logging.NewError(logging.ErrorTypeUnparsableRule, "Failed to parse category", err, map[string]interface{}{
				"category": key,
				"query":    value,
			}))
			diagnostics = append(diagnostics, Diagnostic{CategoryKey: key, Message: err.Error()})
			continue
		}
		categories[key] = &Category{Name: key, Query: query, RawSource: value}
		logging.Logger.Debug().Str("category", key).Str("query", query.String()).Msg("Compiled category")
	}

	ruleSet := newRuleSet(uuid.NewString(), c.now(), categories, diagnostics)
	return ruleSet, diagnostics, nil
}
