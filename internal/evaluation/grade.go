package evaluation

import (
	"strings"
	"time"
	"unicode"
)

const (
	// StatusAnswered is the only status an in-scope question can match with.
	StatusAnswered = "answered"
	// Statuses that count as a correct refusal for out-of-scope questions.
	StatusOutOfScope = "out_of_scope"
	StatusNoEvidence = "no_evidence"
)

// Answer is what the pipeline returned for a question.
type Answer struct {
	Text    string
	Sources []string
	Status  string
}

// Outcome is one graded question.
type Outcome struct {
	ID       string        `json:"id"`
	Question string        `json:"question"`
	Expected string        `json:"expected,omitempty"`
	Answer   string        `json:"answer"`
	Sources  []string      `json:"sources"`
	Status   string        `json:"status"`
	Matched  bool          `json:"matched"`
	Reason   string        `json:"reason,omitempty"`
	Latency  time.Duration `json:"latency_ns"`
}

// Grade compares an answer with the question's expectations.
func Grade(q Question, a Answer) Outcome {
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}
	out := Outcome{
		ID:       q.ID,
		Question: q.Question,
		Expected: q.Expected,
		Answer:   a.Text,
		Sources:  sources,
		Status:   a.Status,
	}

	if q.ExpectOutOfScope {
		out.Matched = a.Status == StatusOutOfScope || a.Status == StatusNoEvidence
		if !out.Matched {
			out.Reason = "expected a refusal, got status " + a.Status
		}
		return out
	}

	if a.Status != StatusAnswered {
		out.Reason = "expected an answer, got status " + a.Status
		return out
	}
	if q.Expected != "" && !ContainsExpected(a.Text, q.Expected) {
		out.Reason = "answer does not contain expected text"
		return out
	}
	if missing := missingSources(q.ExpectedSources, a.Sources); len(missing) > 0 {
		out.Reason = "missing sources: " + strings.Join(missing, "; ")
		return out
	}
	out.Matched = true
	return out
}

// ContainsExpected reports whether answer contains any "|"-separated
// alternative of expected after normalization.
func ContainsExpected(answer, expected string) bool {
	na := Normalize(answer)
	for _, alt := range strings.Split(expected, "|") {
		if n := Normalize(alt); n != "" && strings.Contains(na, n) {
			return true
		}
	}
	return false
}

// Normalize lowercases s, drops currency signs and thousands separators,
// and collapses whitespace.
func Normalize(s string) string {
	runes := []rune(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i, r := range runes {
		switch {
		case r == '$':
			continue
		case r == ',' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func missingSources(want, got []string) []string {
	have := make(map[string]bool, len(got))
	for _, s := range got {
		have[strings.ToLower(s)] = true
	}
	var missing []string
	for _, s := range want {
		if !have[strings.ToLower(s)] {
			missing = append(missing, s)
		}
	}
	return missing
}
