// Package classify assigns a category and a tag set to an item from its
// title and summary using a static keyword table.
package classify

import (
	"strings"
	"unicode"

	"newsfeed/pkg/domain"
)

// MinTagLength is the minimum rune length of a tag token.
const MinTagLength = 3

// Rule maps one category to the keywords that select it.
// Keywords may be single words or multi-word phrases.
type Rule struct {
	Category domain.Category
	Keywords []string
}

// Classifier matches text against an ordered rule table. Earlier rules win.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	category domain.Category
	needles  []string
}

// New compiles rules in the given priority order.
func New(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{category: r.Category}
		for _, kw := range r.Keywords {
			if norm := normalizeText(kw); norm != "" {
				cr.needles = append(cr.needles, " "+norm+" ")
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return New(DefaultRules)
}

// WithKeywords returns rules with extra keywords appended to existing
// categories. Categories unknown to rules are added at the end, in key order
// of the provided slice.
func WithKeywords(rules []Rule, extra map[domain.Category][]string) []Rule {
	out := make([]Rule, 0, len(rules)+len(extra))
	used := make(map[domain.Category]bool, len(extra))
	for _, r := range rules {
		kws := append(append([]string(nil), r.Keywords...), extra[r.Category]...)
		out = append(out, Rule{Category: r.Category, Keywords: kws})
		used[r.Category] = true
	}
	for cat, kws := range extra {
		if !used[cat] && len(kws) > 0 {
			out = append(out, Rule{Category: cat, Keywords: append([]string(nil), kws...)})
		}
	}
	return out
}

// Categorize returns the first category in priority order with a keyword in
// title or summary. With no match it returns fallback, or
// domain.DefaultCategory if fallback is empty.
func (c *Classifier) Categorize(title, summary string, fallback domain.Category) domain.Category {
	text := " " + normalizeText(title+" "+summary) + " "
	if c != nil && strings.TrimSpace(text) != "" {
		for _, r := range c.rules {
			for _, needle := range r.needles {
				if strings.Contains(text, needle) {
					return r.category
				}
			}
		}
	}
	if fallback == "" {
		return domain.DefaultCategory
	}
	return fallback
}

// ExtractTags tokenizes title and summary into lowercase words of at least
// MinTagLength runes, drops stop words and duplicates, and returns at most
// maxTags of them in first-seen order.
func ExtractTags(title, summary string, maxTags int) []string {
	tags := []string{}
	if maxTags <= 0 {
		return tags
	}

	seen := make(map[string]bool)
	for _, tok := range tokenize(title + " " + summary) {
		if len([]rune(tok)) < MinTagLength || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		tags = append(tags, tok)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeText lower-cases s and collapses every run of non-word characters
// into one space so keywords match on word boundaries.
func normalizeText(s string) string {
	return strings.Join(tokenize(s), " ")
}
