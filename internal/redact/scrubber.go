// Package redact scrubs credentials out of document text before it is
// chunked and embedded, using the gitleaks rule set.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/fyrsmithlabs/filingqa/internal/extract"
)

// Finding is one detected secret. The secret itself is not retained.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
}

// Result is the outcome of scrubbing one text.
type Result struct {
	Text     string
	Findings []Finding
}

// Report summarises a scrub over many pages.
type Report struct {
	Redactions int            `json:"redactions"`
	ByRule     map[string]int `json:"by_rule,omitempty"`
}

// Scrubber replaces detected secrets with "[REDACTED:<rule-id>]".
// It is safe for concurrent use.
type Scrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a scrubber with the default gitleaks rules plus the allowlist
// at cfg.Allowlist. It returns nil when redaction is disabled.
func New(cfg config.RedactionConfig) (*Scrubber, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	allow, err := LoadAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	return NewWithAllowlist(allow)
}

// NewWithAllowlist builds a scrubber with the default gitleaks rules.
func NewWithAllowlist(allow *Allowlist) (*Scrubber, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}
	if allow != nil && (len(allow.Regexes) > 0 || len(allow.StopWords) > 0) {
		if err := applyAllowlist(&detector.Config, allow); err != nil {
			return nil, err
		}
	}
	return &Scrubber{detector: detector}, nil
}

func applyAllowlist(cfg *gitleaksConfig.Config, allow *Allowlist) error {
	entry := &gitleaksConfig.Allowlist{
		Description: "filingqa allowlist",
		StopWords:   allow.StopWords,
	}
	for _, pattern := range allow.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// Scrub redacts every detected secret in text.
func (s *Scrubber) Scrub(text string) Result {
	if s == nil || text == "" {
		return Result{Text: text}
	}

	s.mu.Lock()
	found := s.detector.DetectString(text)
	s.mu.Unlock()

	if len(found) == 0 {
		return Result{Text: text}
	}

	// Longest secrets first so a secret that contains another is replaced whole.
	sort.SliceStable(found, func(i, j int) bool {
		return len(found[i].Secret) > len(found[j].Secret)
	})

	out := Result{Text: text, Findings: make([]Finding, 0, len(found))}
	for _, f := range found {
		out.Findings = append(out.Findings, Finding{RuleID: f.RuleID, Description: f.Description})
		if f.Secret == "" {
			continue
		}
		out.Text = strings.ReplaceAll(out.Text, f.Secret, Marker(f.RuleID))
	}
	return out
}

// ScrubPages scrubs each page and returns the rewritten pages with a report.
// The input slice is not modified.
func (s *Scrubber) ScrubPages(pages []extract.Page) ([]extract.Page, Report) {
	report := Report{ByRule: map[string]int{}}
	if s == nil {
		return pages, report
	}

	out := make([]extract.Page, len(pages))
	for i, p := range pages {
		res := s.Scrub(p.Text)
		out[i] = extract.Page{Number: p.Number, Text: res.Text}
		for _, f := range res.Findings {
			report.Redactions++
			report.ByRule[f.RuleID]++
		}
	}
	return out, report
}

// Marker is the replacement text for a secret found by ruleID.
func Marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}
