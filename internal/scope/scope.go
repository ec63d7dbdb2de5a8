// Package scope decides whether a question can be answered from the
// indexed filings at all.
//
// Rules are evaluated in order and the first match wins:
//
//  1. forward_looking: forecasts, predictions and other speculation.
//  2. future_period: any fiscal period later than the reference year.
//  3. absent_attribute: topics filings never describe (colours, weather).
//  4. configured rules, in configuration order.
//
// Anything that matches no rule is in scope. Classification never fails.
package scope

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/filingqa/internal/config"
)

// RuleKind names the rule that rejected a question.
type RuleKind string

const (
	// RuleNone is reported for in-scope questions.
	RuleNone RuleKind = ""

	RuleForwardLooking  RuleKind = "forward_looking"
	RuleFuturePeriod    RuleKind = "future_period"
	RuleAbsentAttribute RuleKind = "absent_attribute"
)

// DefaultReferenceYear is the latest fiscal year covered by the default corpus.
const DefaultReferenceYear = 2024

// DefaultForwardLooking are the speculation phrases rejected by default.
var DefaultForwardLooking = []string{
	"stock price forecast",
	"stock recommendation",
	"price target",
	"future price",
	"next quarter",
	"next year",
	"forecast",
	"forecasts",
	"prediction",
	"predict",
	"predicted",
	"will be",
	"outlook",
	"projected",
}

// DefaultAbsentAttributes are topics the filings do not cover.
var DefaultAbsentAttributes = []string{
	"color",
	"colour",
	"painted",
	"weather",
	"climate change",
	"political",
}

var (
	// fullYear matches 1900-2099, optionally prefixed with FY ("FY2025", "FY '25" is handled below).
	fullYear = regexp.MustCompile(`(?i)(?:\bfy\s*'?|\b)((?:19|20)\d{2})\b`)

	// shortFiscalYear matches two-digit fiscal years such as "FY25" or "FY '26".
	shortFiscalYear = regexp.MustCompile(`(?i)\bfy\s*'?(\d{2})\b`)
)

// Decision is the outcome of classifying one question.
type Decision struct {
	OutOfScope bool
	Rule       RuleKind
	// Match is the text that triggered the rule.
	Match string
}

type keywordRule struct {
	kind    RuleKind
	pattern *regexp.Regexp
}

// Filter classifies questions. It is immutable and safe for concurrent use.
type Filter struct {
	referenceYear int
	rules         []keywordRule // forward_looking first, then absent_attribute, then extra
}

// New builds a filter from configuration. Empty term lists fall back to
// the defaults; a zero reference year means DefaultReferenceYear.
func New(cfg config.ScopeConfig) *Filter {
	f := &Filter{referenceYear: cfg.ReferenceYear}
	if f.referenceYear == 0 {
		f.referenceYear = DefaultReferenceYear
	}

	forward := cfg.ForwardLooking
	if len(forward) == 0 {
		forward = DefaultForwardLooking
	}
	absent := cfg.AbsentAttributes
	if len(absent) == 0 {
		absent = DefaultAbsentAttributes
	}

	f.addRule(RuleForwardLooking, forward)
	f.addRule(RuleAbsentAttribute, absent)
	for _, r := range cfg.Rules {
		f.addRule(RuleKind(r.Name), r.Terms)
	}
	return f
}

// Default returns a filter with the built-in term lists.
func Default() *Filter {
	return New(config.ScopeConfig{})
}

// ReferenceYear returns the latest fiscal year treated as in scope.
func (f *Filter) ReferenceYear() int {
	return f.referenceYear
}

func (f *Filter) addRule(kind RuleKind, terms []string) {
	if p := termPattern(terms); p != nil {
		f.rules = append(f.rules, keywordRule{kind: kind, pattern: p})
	}
}

// termPattern compiles terms into one case-insensitive whole-word
// alternation. Longer terms are tried first so "stock price forecast"
// wins over "forecast".
func termPattern(terms []string) *regexp.Regexp {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		words := strings.Fields(t)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		cleaned = append(cleaned, strings.Join(words, `\s+`))
	}
	if len(cleaned) == 0 {
		return nil
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return len(cleaned[i]) > len(cleaned[j])
	})
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(cleaned, "|") + `)\b`)
}

// Classify applies the rules in order and reports the first match.
func (f *Filter) Classify(query string) Decision {
	if len(f.rules) > 0 && f.rules[0].kind == RuleForwardLooking {
		if m := f.rules[0].pattern.FindString(query); m != "" {
			return Decision{OutOfScope: true, Rule: RuleForwardLooking, Match: m}
		}
	}

	if m := f.futurePeriod(query); m != "" {
		return Decision{OutOfScope: true, Rule: RuleFuturePeriod, Match: m}
	}

	for _, r := range f.rules {
		if r.kind == RuleForwardLooking {
			continue
		}
		if m := r.pattern.FindString(query); m != "" {
			return Decision{OutOfScope: true, Rule: r.kind, Match: m}
		}
	}
	return Decision{}
}

// IsOutOfScope reports whether any rule rejects query.
func (f *Filter) IsOutOfScope(query string) bool {
	return f.Classify(query).OutOfScope
}

// futurePeriod returns the first year mention later than the reference year.
func (f *Filter) futurePeriod(query string) string {
	for _, m := range fullYear.FindAllStringSubmatchIndex(query, -1) {
		year, err := strconv.Atoi(query[m[2]:m[3]])
		if err == nil && year > f.referenceYear {
			return strings.TrimSpace(query[m[0]:m[1]])
		}
	}
	for _, m := range shortFiscalYear.FindAllStringSubmatchIndex(query, -1) {
		yy, err := strconv.Atoi(query[m[2]:m[3]])
		if err == nil && expandShortYear(yy, f.referenceYear) > f.referenceYear {
			return query[m[0]:m[1]]
		}
	}
	return ""
}

// shortYearWindow is how far past the reference year a two-digit year may
// land before it is read as the previous century.
const shortYearWindow = 50

// expandShortYear reads yy as the year in (ref-100+shortYearWindow,
// ref+shortYearWindow]: with ref 2024, 25 is 2025 and 99 is 1999.
func expandShortYear(yy, ref int) int {
	year := ref/100*100 + yy
	switch {
	case year > ref+shortYearWindow:
		year -= 100
	case year <= ref+shortYearWindow-100:
		year += 100
	}
	return year
}
