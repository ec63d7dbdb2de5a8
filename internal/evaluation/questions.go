// Package evaluation runs a fixed question set against the answering
// pipeline and grades the answers.
package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"
)

// ErrUnknownFormat is returned for question files that are not JSON, YAML or TOML.
var ErrUnknownFormat = errors.New("unknown question file format")

// Question is one evaluation item.
type Question struct {
	ID       string `json:"id" yaml:"id" toml:"id"`
	Question string `json:"question" yaml:"question" toml:"question"`

	// Expected must appear in the answer after normalization. Alternatives
	// are separated by "|".
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty" toml:"expected,omitempty"`

	// ExpectOutOfScope marks questions the corpus cannot answer.
	ExpectOutOfScope bool `json:"expect_out_of_scope,omitempty" yaml:"expect_out_of_scope,omitempty" toml:"expect_out_of_scope,omitempty"`

	// ExpectedSources must all be among the returned sources.
	ExpectedSources []string `json:"expected_sources,omitempty" yaml:"expected_sources,omitempty" toml:"expected_sources,omitempty"`
}

type questionFile struct {
	Questions []Question `json:"questions" yaml:"questions" toml:"questions"`
}

// Load reads a question set. JSON and YAML files may hold either a list or
// an object with a "questions" list; TOML files use [[questions]] tables.
// An empty path returns DefaultQuestions.
func Load(path string) ([]Question, error) {
	if path == "" {
		return DefaultQuestions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading questions: %w", err)
	}

	var questions []Question
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		questions, err = decodeJSON(data)
	case ".yaml", ".yml":
		questions, err = decodeYAML(data)
	case ".toml":
		var f questionFile
		_, err = toml.Decode(string(data), &f)
		questions = f.Questions
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return questions, Validate(questions)
}

func decodeJSON(data []byte) ([]Question, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Question
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}
	var f questionFile
	err := json.Unmarshal(trimmed, &f)
	return f.Questions, err
}

func decodeYAML(data []byte) ([]Question, error) {
	var list []Question
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f questionFile
	err := yaml.Unmarshal(data, &f)
	return f.Questions, err
}

// Validate assigns missing ids ("q1", "q2", ...) and reports duplicate ids
// and questions without text.
func Validate(questions []Question) error {
	var errs []error
	seen := make(map[string]bool, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Errorf("duplicate question id %q", q.ID))
		}
		seen[q.ID] = true
		if strings.TrimSpace(q.Question) == "" {
			errs = append(errs, fmt.Errorf("question %q has no text", q.ID))
		}
	}
	return errors.Join(errs...)
}

// DefaultQuestions is the built-in question set for the Apple FY2024 and
// Tesla FY2023 10-K filings.
func DefaultQuestions() []Question {
	return []Question{
		{
			ID:       "apple-revenue",
			Question: "What was Apple's total revenue for the fiscal year ended September 28, 2024?",
			Expected: "391,036",
		},
		{
			ID:       "apple-shares",
			Question: "How many shares of common stock were issued and outstanding as of October 18, 2024?",
			Expected: "15,115,823,000|15,115,823",
		},
		{
			ID:       "apple-term-debt",
			Question: "What is the total amount of term debt (current + non-current) reported by Apple as of September 28, 2024?",
			Expected: "96,662",
		},
		{
			ID:       "apple-filing-date",
			Question: "On what date was Apple's 10-K report for 2024 signed and filed with the SEC?",
			Expected: "November 1, 2024",
		},
		{
			ID:       "apple-staff-comments",
			Question: "Does Apple have any unresolved staff comments from the SEC as of this filing?",
			Expected: "none|no unresolved",
		},
		{
			ID:       "tesla-revenue",
			Question: "What was Tesla's total revenue for the year ended December 31, 2023?",
			Expected: "96,773",
		},
		{
			ID:       "tesla-automotive-share",
			Question: "What percentage of Tesla's total revenue in 2023 came from Automotive Sales (excluding Leasing)?",
			Expected: "81%|78,509",
		},
		{
			ID:       "tesla-musk-dependence",
			Question: "What is the primary reason Tesla states for being highly dependent on Elon Musk?",
			Expected: "Chief Executive Officer|Technoking|central",
		},
		{
			ID:       "tesla-vehicles",
			Question: "What types of vehicles does Tesla currently produce and deliver?",
			Expected: "Model 3|Model Y|Cybertruck",
		},
		{
			ID:               "tesla-forecast",
			Question:         "What is Tesla's stock price forecast for 2025?",
			ExpectOutOfScope: true,
		},
		{
			ID:               "apple-cfo-2025",
			Question:         "Who is the CFO of Apple as of 2025?",
			ExpectOutOfScope: true,
		},
		{
			ID:               "tesla-hq-color",
			Question:         "What color is Tesla's headquarters painted?",
			ExpectOutOfScope: true,
		},
	}
}
