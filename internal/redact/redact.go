package redact

import (
	"fmt"
	"regexp"
)

// Rule is a named removal pattern.
type Rule struct {
	Name    string
	Pattern string
}

// Default rules, applied in this order.
var (
	PrivateNotice = Rule{
		Name:    "private-notice",
		Pattern: `(?s)This is a PRIVATE message.*?purpose\.`,
	}
	ExternalCorrespondence = Rule{
		Name:    "external-correspondence",
		Pattern: `(?s)External xxxxxxxx correspondence:.*?if it is obtained from another source without restriction\.`,
	}
)

// Redactor removes every match of its rules from a string.
// A Redactor is immutable and safe for concurrent use.
type Redactor struct {
	rules    []Rule
	patterns []*regexp.Regexp
}

// New compiles the given rules in order.
func New(rules ...Rule) (*Redactor, error) {
	r := &Redactor{
		rules:    make([]Rule, 0, len(rules)),
		patterns: make([]*regexp.Regexp, 0, len(rules)),
	}
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile redaction rule %q: %w", rule.Name, err)
		}
		r.rules = append(r.rules, rule)
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

var defaultRedactor = mustNew(PrivateNotice, ExternalCorrespondence)

// Default returns the redactor holding the two built-in rules.
func Default() *Redactor {
	return defaultRedactor
}

// WithExtra returns the built-in rules followed by extra patterns.
// Extra patterns are compiled with dot-matches-newline enabled.
func WithExtra(patterns []string) (*Redactor, error) {
	if len(patterns) == 0 {
		return defaultRedactor, nil
	}
	rules := []Rule{PrivateNotice, ExternalCorrespondence}
	for i, p := range patterns {
		rules = append(rules, Rule{
			Name:    fmt.Sprintf("extra-%d", i+1),
			Pattern: "(?s)" + p,
		})
	}
	return New(rules...)
}

// Apply removes every match of every rule, in rule order.
func (r *Redactor) Apply(content string) string {
	for _, re := range r.patterns {
		content = re.ReplaceAllLiteralString(content, "")
	}
	return content
}

// Matches reports whether any rule matches content.
func (r *Redactor) Matches(content string) bool {
	for _, re := range r.patterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// Rules returns a copy of the configured rules.
func (r *Redactor) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func mustNew(rules ...Rule) *Redactor {
	r, err := New(rules...)
	if err != nil {
		panic(err)
	}
	return r
}
