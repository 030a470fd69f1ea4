// Package rules applies deterministic corrections to finalized transcripts.
//
// A corrections file is YAML:
//
//	corrections:
//	  - from: みみ友
//	    to: ミミトモ
//	  - pattern: '(\d+)じ(\d+)ふん'
//	    replace: '${1}時${2}分'
//	    global: true
//
// Literal rules match case-insensitively everywhere. Pattern rules replace the
// first match unless global is set. Rules run in order, repeatedly, until the
// text stops changing or the iteration limit is reached.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLoopLimit = 30

type compiledRule interface {
	Apply(input string) (output string, changed bool)
}

// Correction is one entry of a corrections file.
type Correction struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
	Global  bool   `yaml:"global"`
	// CaseSensitive disables the default case-insensitive match.
	CaseSensitive bool `yaml:"case_sensitive"`
}

type file struct {
	Corrections []Correction `yaml:"corrections"`
}

// Engine applies compiled corrections.
type Engine struct {
	rules     []compiledRule
	loopLimit int
}

// NewEngine loads corrections from path. A blank or missing path yields an
// engine that returns text unchanged.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return newEngine(nil, loopLimit), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newEngine(nil, loopLimit), nil
		}
		return nil, fmt.Errorf("failed to read corrections file %q: %w", path, err)
	}

	engine, err := Parse(contents, loopLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse corrections file %q: %w", path, err)
	}
	return engine, nil
}

// Parse compiles a corrections document.
func Parse(contents []byte, loopLimit int) (*Engine, error) {
	var doc file
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, err
	}
	return Compile(doc.Corrections, loopLimit)
}

// Compile builds an engine from corrections.
func Compile(corrections []Correction, loopLimit int) (*Engine, error) {
	rules := make([]compiledRule, 0, len(corrections))
	for index, correction := range corrections {
		rule, err := compile(correction)
		if err != nil {
			return nil, fmt.Errorf("correction %d: %w", index+1, err)
		}
		rules = append(rules, rule)
	}
	return newEngine(rules, loopLimit), nil
}

func newEngine(rules []compiledRule, loopLimit int) *Engine {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}
	return &Engine{rules: rules, loopLimit: loopLimit}
}

// Len returns the number of loaded corrections.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply transforms text deterministically.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return result, nil
}

func compile(c Correction) (compiledRule, error) {
	literal := c.From != ""
	pattern := c.Pattern != ""
	switch {
	case literal && pattern:
		return nil, errors.New("set either from or pattern, not both")
	case literal:
		return compileLiteral(c)
	case pattern:
		return compilePattern(c)
	default:
		return nil, errors.New("from or pattern is required")
	}
}

type literalRule struct {
	replacement string
	re          *regexp.Regexp
}

func compileLiteral(c Correction) (compiledRule, error) {
	source := regexp.QuoteMeta(strings.TrimSpace(c.From))
	if source == "" {
		return nil, errors.New("literal source cannot be blank")
	}
	if !c.CaseSensitive {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{replacement: c.To, re: re}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func compilePattern(c Correction) (compiledRule, error) {
	source := c.Pattern
	if !c.CaseSensitive {
		source = "(?i)" + source
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return regexRule{re: re, replacement: c.Replace, global: c.Global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}

	replaced := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(replaced) + input[loc[1]:]
	return output, output != input
}
