package evaluation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultQuestions(t *testing.T) {
	qs := DefaultQuestions()
	require.Len(t, qs, 12)
	require.NoError(t, Validate(qs))

	outOfScope := 0
	for _, q := range qs {
		if q.ExpectOutOfScope {
			outOfScope++
			assert.Empty(t, q.Expected, q.ID)
		} else {
			assert.NotEmpty(t, q.Expected, q.ID)
		}
	}
	assert.Equal(t, 3, outOfScope)
}

func TestLoad_Formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"list.json": `[{"id": "rev", "question": "Apple revenue?", "expected": "391,036", "expected_sources": ["Apple 10-K, p. 282"]}]`,
		"obj.json":  `{"questions": [{"id": "rev", "question": "Apple revenue?", "expected": "391,036", "expected_sources": ["Apple 10-K, p. 282"]}]}`,
		"list.yaml": "- id: rev\n  question: Apple revenue?\n  expected: \"391,036\"\n  expected_sources: [\"Apple 10-K, p. 282\"]\n",
		"obj.yml":   "questions:\n  - id: rev\n    question: Apple revenue?\n    expected: \"391,036\"\n    expected_sources: [\"Apple 10-K, p. 282\"]\n",
		"set.toml":  "[[questions]]\nid = \"rev\"\nquestion = \"Apple revenue?\"\nexpected = \"391,036\"\nexpected_sources = [\"Apple 10-K, p. 282\"]\n",
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			qs, err := Load(path)
			require.NoError(t, err)
			require.Len(t, qs, 1)
			assert.Equal(t, Question{
				ID:              "rev",
				Question:        "Apple revenue?",
				Expected:        "391,036",
				ExpectedSources: []string{"Apple 10-K, p. 282"},
			}, qs[0])
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "questions.csv"))
	assert.Error(t, err)

	csv := filepath.Join(dir, "q.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b"), 0o600))
	_, err = Load(csv)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`[{"id":"a","question":"x"},{"id":"a","question":"y"},{"question":""}]`), 0o600))
	_, err = Load(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate question id "a"`)
	assert.Contains(t, err.Error(), `question "q3" has no text`)

	qs, err := Load("")
	require.NoError(t, err)
	assert.Len(t, qs, 12)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"$391,036 million", "391036 million"},
		{"  Total   Revenue\n was ", "total revenue was"},
		{"a, b", "a, b"},
		{"15,115,823,000", "15115823000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestGrade(t *testing.T) {
	rev := Question{ID: "rev", Question: "Apple revenue?", Expected: "391,036", ExpectedSources: []string{"Apple 10-K, p. 282"}}

	o := Grade(rev, Answer{Text: "Total revenue was $391,036 million.", Sources: []string{"apple 10-k, p. 282", "Apple 10-K, p. 30"}, Status: "answered"})
	assert.True(t, o.Matched, o.Reason)

	o = Grade(rev, Answer{Text: "Revenue was 391036 million.", Sources: []string{"Apple 10-K, p. 30"}, Status: "answered"})
	assert.False(t, o.Matched)
	assert.Contains(t, o.Reason, "missing sources")

	o = Grade(rev, Answer{Text: "Not specified in the document.", Status: StatusNoEvidence})
	assert.False(t, o.Matched)
	assert.Equal(t, []string{}, o.Sources)

	alt := Question{ID: "v", Question: "Vehicles?", Expected: "Model 3|Cybertruck"}
	assert.True(t, Grade(alt, Answer{Text: "Tesla delivers the Cybertruck.", Status: StatusAnswered}).Matched)

	oos := Question{ID: "f", Question: "Forecast?", ExpectOutOfScope: true}
	assert.True(t, Grade(oos, Answer{Status: StatusOutOfScope}).Matched)
	assert.True(t, Grade(oos, Answer{Status: StatusNoEvidence}).Matched)
	o = Grade(oos, Answer{Status: "answered", Text: "It will rise."})
	assert.False(t, o.Matched)
	assert.Contains(t, o.Reason, "expected a refusal")
}

func TestGrade_OpenQuestionNeedsAnswer(t *testing.T) {
	open := Question{ID: "open", Question: "Describe Apple's segments."}

	assert.True(t, Grade(open, Answer{Text: "Americas, Europe and Greater China.", Status: StatusAnswered}).Matched)
	for _, status := range []string{"unavailable", "not_indexed", StatusNoEvidence, StatusOutOfScope} {
		o := Grade(open, Answer{Status: status})
		assert.False(t, o.Matched, status)
		assert.Equal(t, "expected an answer, got status "+status, o.Reason)
	}
}

func TestReport_WriteRead(t *testing.T) {
	outcomes := []Outcome{{ID: "a", Matched: true}, {ID: "b"}, {ID: "c", Matched: true}, {ID: "d", Matched: true}}
	r := NewReport("phi3:mini", outcomes)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 3, r.Matched)
	assert.InDelta(t, 0.75, r.Accuracy, 1e-9)

	path := filepath.Join(t.TempDir(), "nested", "evaluation_results.json")
	require.NoError(t, WriteResults(path, r))

	got, err := ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, r.Model, got.Model)
	assert.Equal(t, r.Matched, got.Matched)
	assert.Len(t, got.Outcomes, 4)
	assert.True(t, r.GeneratedAt.Equal(got.GeneratedAt))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")

	assert.Zero(t, NewReport("m", nil).Accuracy)
}
