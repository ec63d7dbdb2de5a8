package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/filingqa/internal/config"
)

func TestClassify_Default(t *testing.T) {
	f := Default()

	tests := []struct {
		name  string
		query string
		rule  RuleKind
		match string
	}{
		{"forecast with year", "What is the stock price forecast for 2025?", RuleForwardLooking, "stock price forecast"},
		{"prediction", "Can you predict Tesla deliveries?", RuleForwardLooking, "predict"},
		{"case insensitive", "What is Apple's OUTLOOK?", RuleForwardLooking, "OUTLOOK"},
		{"multi word with extra space", "Revenue next   quarter?", RuleForwardLooking, "next   quarter"},
		{"future year", "Who is the CFO of Apple as of 2025?", RuleFuturePeriod, "2025"},
		{"fiscal prefix", "Apple revenue in FY2026", RuleFuturePeriod, "FY2026"},
		{"short fiscal year", "Tesla margin FY25", RuleFuturePeriod, "FY25"},
		{"quarter label", "Tesla deliveries Q1 2025", RuleFuturePeriod, "2025"},
		{"absent attribute", "What color is Tesla's headquarters painted?", RuleAbsentAttribute, "color"},
		{"british spelling", "What colour are Apple stores?", RuleAbsentAttribute, "colour"},
		{"phrase", "How does climate change affect Apple?", RuleAbsentAttribute, "climate change"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.Classify(tt.query)
			assert.True(t, d.OutOfScope)
			assert.Equal(t, tt.rule, d.Rule)
			assert.Equal(t, tt.match, d.Match)
			assert.True(t, f.IsOutOfScope(tt.query))
		})
	}
}

func TestExpandShortYear(t *testing.T) {
	tests := []struct {
		yy, ref, want int
	}{
		{23, 2024, 2023},
		{25, 2024, 2025},
		{74, 2024, 2074},
		{75, 2024, 1975},
		{99, 2024, 1999},
		{0, 2024, 2000},
		{5, 1998, 2005},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandShortYear(tt.yy, tt.ref), "yy=%d ref=%d", tt.yy, tt.ref)
	}
}

func TestClassify_InScope(t *testing.T) {
	f := Default()

	queries := []string{
		"What was Apple's total revenue for the fiscal year ended September 28, 2024?",
		"What was Tesla's total revenue for the year ended December 31, 2023?",
		"How many shares of common stock were outstanding as of October 18, 2024?",
		"What is the total amount of term debt reported by Apple?",
		"Total revenue was $391,036 million, was it higher than in FY23?",
		"How did Apple's FY99 revenue compare?",
		"What does Tesla say about its predictive maintenance features?",
		"",
	}
	for _, q := range queries {
		d := f.Classify(q)
		assert.False(t, d.OutOfScope, "query %q rejected by %s (%q)", q, d.Rule, d.Match)
		assert.Equal(t, RuleNone, d.Rule)
	}
}

func TestClassify_WholeWordOnly(t *testing.T) {
	f := Default()

	// "colorful" and "predictive" contain default terms but are not those words.
	assert.False(t, f.IsOutOfScope("Describe the colorful history of the iPhone segment"))
	assert.False(t, f.IsOutOfScope("What predictive analytics does Tesla disclose?"))
}

func TestClassify_ForwardLookingBeatsFuturePeriod(t *testing.T) {
	d := Default().Classify("Forecast Apple revenue for fiscal 2030")
	require.True(t, d.OutOfScope)
	assert.Equal(t, RuleForwardLooking, d.Rule)
}

func TestClassify_ReferenceYear(t *testing.T) {
	f := New(config.ScopeConfig{ReferenceYear: 2025})

	assert.False(t, f.IsOutOfScope("Apple revenue in 2025"))
	assert.True(t, f.IsOutOfScope("Apple revenue in 2026"))
	assert.Equal(t, 2025, f.ReferenceYear())
	assert.Equal(t, DefaultReferenceYear, Default().ReferenceYear())
}

func TestClassify_ConfiguredRules(t *testing.T) {
	f := New(config.ScopeConfig{
		ForwardLooking: []string{"guidance"},
		Rules: []config.ScopeRule{
			{Name: "personal", Terms: []string{"favorite", "home address"}},
			{Name: "empty", Terms: []string{"  "}},
		},
	})

	d := f.Classify("What is Apple's guidance?")
	assert.Equal(t, RuleForwardLooking, d.Rule)

	// Configured term lists replace the defaults.
	assert.False(t, f.IsOutOfScope("Apple outlook"))

	d = f.Classify("What is Elon Musk's home address?")
	require.True(t, d.OutOfScope)
	assert.Equal(t, RuleKind("personal"), d.Rule)
	assert.Equal(t, "home address", d.Match)

	// Built-in rules still run before configured ones.
	d = f.Classify("Favorite color of the Model Y")
	assert.Equal(t, RuleAbsentAttribute, d.Rule)
}
