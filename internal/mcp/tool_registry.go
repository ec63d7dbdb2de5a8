package mcp

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ToolCategory groups tools for discovery.
type ToolCategory string

const (
	CategoryQuery  ToolCategory = "query"
	CategoryIndex  ToolCategory = "index"
	CategorySearch ToolCategory = "search"
)

var (
	ErrToolExists  = errors.New("tool already registered")
	ErrInvalidTool = errors.New("invalid tool metadata")
)

// ToolMetadata describes a registered tool for tool_search and tool_list.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	Keywords    []string     `json:"keywords,omitempty"`
}

// SearchResult is a tool matched by a query. Score is 3 for an exact name,
// 2 for a name hit and 1 for a description or keyword hit.
type SearchResult struct {
	Tool        *ToolMetadata `json:"tool"`
	Score       int           `json:"score"`
	MatchReason string        `json:"match_reason"`
}

// ToolRegistry indexes the tools a server exposes. Safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolMetadata)}
}

// Register adds a tool. Names are unique.
func (r *ToolRegistry) Register(tool *ToolMetadata) error {
	if tool == nil || tool.Name == "" || tool.Category == "" {
		return ErrInvalidTool
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[tool.Name]; dup {
		return fmt.Errorf("%w: %s", ErrToolExists, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns every tool ordered by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	return r.where("")
}

func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	return r.where(category)
}

// where lists tools in category, or all tools for "".
func (r *ToolRegistry) where(category ToolCategory) []*ToolMetadata {
	r.mu.RLock()
	out := make([]*ToolMetadata, 0, len(r.tools))
	for _, t := range r.tools {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *ToolMetadata) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Search matches query case-insensitively against names, descriptions and
// keywords, best score first. A query that compiles as a regular
// expression also matches as a pattern.
func (r *ToolRegistry) Search(query string) []*SearchResult {
	if query == "" {
		return nil
	}
	m := matcher{literal: strings.ToLower(query)}
	if re, err := regexp.Compile("(?i)" + query); err == nil {
		m.pattern = re
	}

	var results []*SearchResult
	for _, t := range r.List() {
		if score, reason := m.score(t); score > 0 {
			results = append(results, &SearchResult{Tool: t, Score: score, MatchReason: reason})
		}
	}
	slices.SortStableFunc(results, func(a, b *SearchResult) int { return b.Score - a.Score })
	return results
}

func (r *ToolRegistry) SearchByCategory(query string, category ToolCategory) []*SearchResult {
	out := []*SearchResult{}
	for _, res := range r.Search(query) {
		if res.Tool.Category == category {
			out = append(out, res)
		}
	}
	return out
}

type matcher struct {
	literal string
	pattern *regexp.Regexp
}

// hit reports how s matches: "contains query", "matches pattern" or "".
func (m matcher) hit(s string) string {
	if strings.Contains(strings.ToLower(s), m.literal) {
		return "contains query"
	}
	if m.pattern != nil && m.pattern.MatchString(s) {
		return "matches pattern"
	}
	return ""
}

func (m matcher) score(t *ToolMetadata) (int, string) {
	if strings.ToLower(t.Name) == m.literal {
		return 3, "exact name match"
	}
	if how := m.hit(t.Name); how != "" {
		return 2, "name " + how
	}
	if how := m.hit(t.Description); how != "" {
		return 1, "description " + how
	}
	for _, kw := range t.Keywords {
		if how := m.hit(kw); how != "" {
			return 1, "keyword " + how
		}
	}
	return 0, ""
}
