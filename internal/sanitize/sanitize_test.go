package sanitize

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var validCollection = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

func TestIdentifier(t *testing.T) {
	for in, want := range map[string]string{
		"filingqa":       "filingqa",
		"FilingQA":       "filingqa",
		"sec.gov":        "sec_gov",
		"apple/10-k":     "apple_10_k",
		"sec.gov/edgar":  "sec_gov_edgar",
		"apple-10k!@#$%": "apple_10k",
		"foo___bar":      "foo_bar",
		"_foo_bar_":      "foo_bar",
		"apple 10k":      "apple_10k",
		"apple_10k":      "apple_10k",
		"fy2024":         "fy2024",
		"Tesla, Inc.":    "tesla_inc",
		"":               DefaultIdentifier,
		"!!!":            DefaultIdentifier,
	} {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Identifier(in))
		})
	}
}

func TestIdentifier_Truncation(t *testing.T) {
	exact := strings.Repeat("a", MaxIdentifierLength)
	assert.Equal(t, exact, Identifier(exact))

	a := Identifier(strings.Repeat("a", 100))
	b := Identifier(strings.Repeat("a", 99) + "b")
	assert.Len(t, a, MaxIdentifierLength)
	assert.Regexp(t, `_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name, suffix, want string
	}{
		{"filingqa_chunks", "", "filingqa_chunks"},
		{"FilingQA-Chunks", "", "filingqa_chunks"},
		{"filingqa", "chunks", "filingqa_chunks"},
		{"", "", DefaultIdentifier},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CollectionName(tt.name, tt.suffix), "CollectionName(%q, %q)", tt.name, tt.suffix)
	}
}

func TestCollectionName_AlwaysValid(t *testing.T) {
	for _, in := range [][2]string{
		{strings.Repeat("a", 50), strings.Repeat("b", 50)},
		{"Apple 10-K / FY2024", "chunks!"},
		{"???", "???"},
	} {
		assert.Regexp(t, validCollection, CollectionName(in[0], in[1]))
	}
}
