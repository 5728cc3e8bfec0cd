// Package categorization classifies BWA line labels into revenue, expense,
// summary, or other using an ordered keyword table.
package categorization

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/bwa-insights/internal/domain/bwa"
)

// Rule assigns a classification to labels containing Keyword.
// Within a rule table, earlier rules win over later ones.
type Rule struct {
	Keyword        string
	Classification bwa.Classification
}

// DefaultRules is the precedence table for German BWA labels:
// tax, then summary/total, then revenue, then expense.
func DefaultRules() []Rule {
	return []Rule{
		// Tax lines are expenses even when they mention "Ertrag" or "Erlöse".
		{"steuer", bwa.Expense},

		{"gesamtkosten", bwa.Summary},
		{"betriebsergebnis", bwa.Summary},
		{"rohertrag", bwa.Summary},
		{"gesamtleistung", bwa.Summary},
		{"vorläufiges ergebnis", bwa.Summary},
		{"summe", bwa.Summary},

		{"umsatz", bwa.Revenue},
		{"erlös", bwa.Revenue},
		{"erloes", bwa.Revenue},
		{"ertrag", bwa.Revenue},
		{"erträge", bwa.Revenue},
		{"einnahme", bwa.Revenue},

		{"kosten", bwa.Expense},
		{"aufwand", bwa.Expense},
		{"aufwendung", bwa.Expense},
		{"ausgabe", bwa.Expense},
		{"abschreibung", bwa.Expense},
	}
}

// Engine matches every rule keyword against a label in a single
// Aho-Corasick pass and returns the classification of the highest-ranked hit.
// An Engine is immutable and safe for concurrent use.
type Engine struct {
	matcher *ahocorasick.Matcher
	rules   []Rule
}

// NewEngine builds an engine from rules in precedence order.
// Empty keywords are ignored and a repeated keyword keeps its first rank.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}

	seen := make(map[string]struct{}, len(rules))
	patterns := make([][]byte, 0, len(rules))
	for _, r := range rules {
		kw := normalizeLabel(r.Keyword)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}

		e.rules = append(e.rules, Rule{Keyword: kw, Classification: r.Classification})
		patterns = append(patterns, []byte(kw))
	}

	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewMatcher(patterns)
	}
	return e
}

// NewDefaultEngine is NewEngine(DefaultRules()).
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultRules())
}

// Classify returns exactly one classification for any label.
func (e *Engine) Classify(label string) bwa.Classification {
	if r, ok := e.Match(label); ok {
		return r.Classification
	}
	return bwa.Other
}

// Match returns the winning rule for label, if any.
func (e *Engine) Match(label string) (Rule, bool) {
	if e.matcher == nil {
		return Rule{}, false
	}

	hits := e.matcher.MatchThreadSafe([]byte(normalizeLabel(label)))
	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.rules) {
			continue
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	if best == -1 {
		return Rule{}, false
	}
	return e.rules[best], true
}

// Rules returns a copy of the normalized rule table.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// normalizeLabel composes umlauts (PDF text layers often emit "o" plus a
// combining diaeresis) and lower-cases for matching.
func normalizeLabel(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
