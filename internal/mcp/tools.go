package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/sanitize"
)

// instrumented wraps a tool handler with invocation metrics.
func instrumented[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.Track(ctx, name)
		res, out, err := h(ctx, req, args)
		done(err)
		return res, out, err
	}
}

// addTool registers a handler with the MCP server and the discovery registry.
func addTool[In, Out any](s *Server, meta *ToolMetadata, h mcp.ToolHandlerFor[In, Out]) error {
	if err := s.toolRegistry.Register(meta); err != nil {
		return err
	}
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        meta.Name,
		Description: meta.Description,
	}, instrumented(s, meta.Name, h))
	return nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() error {
	if err := s.registerQueryTools(); err != nil {
		return err
	}
	if err := s.registerIndexTools(); err != nil {
		return err
	}
	return s.registerSearchTools()
}

// ===== QUERY TOOLS =====

type askFilingsInput struct {
	Question string `json:"question" jsonschema:"Question about the ingested 10-K filings"`
}

type askFilingsOutput struct {
	Answer  string   `json:"answer" jsonschema:"Answer text, or a fixed refusal message"`
	Sources []string `json:"sources" jsonschema:"Citations in the form '<document>, p. <page>'"`
	Status  string   `json:"status" jsonschema:"answered, out_of_scope, no_evidence, not_indexed or unavailable"`
	QueryID string   `json:"query_id,omitempty" jsonschema:"Identifier for correlating logs"`
}

func (s *Server) registerQueryTools() error {
	return addTool(s, &ToolMetadata{
		Name:        "ask_filings",
		Description: "Answer a question from the indexed 10-K filings, citing document and page for every source",
		Category:    CategoryQuery,
		Keywords:    []string{"question", "answer", "10-K", "filing", "cite"},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args askFilingsInput) (*mcp.CallToolResult, askFilingsOutput, error) {
		if strings.TrimSpace(args.Question) == "" {
			return nil, askFilingsOutput{}, fmt.Errorf("question is required")
		}

		res := s.qa.AnswerQuestion(ctx, args.Question)
		s.metrics.RecordOutcome(ctx, res.Status)
		answer := s.scrubber.Scrub(res.Answer).Text

		out := askFilingsOutput{
			Answer:  answer,
			Sources: res.Sources,
			Status:  string(res.Status),
			QueryID: res.QueryID,
		}

		text := answer
		if len(res.Sources) > 0 {
			text += "\n\nSources: " + strings.Join(res.Sources, "; ")
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})
}

// ===== INDEX TOOLS =====

type indexStatusInput struct{}

type indexStatusOutput struct {
	Ready          bool             `json:"ready" jsonschema:"Whether an index is published"`
	Chunks         int              `json:"chunks" jsonschema:"Chunks in the published index"`
	EmbeddingModel string           `json:"embedding_model,omitempty" jsonschema:"Model the index was embedded with"`
	LastRebuild    string           `json:"last_rebuild,omitempty" jsonschema:"RFC 3339 time of the last rebuild"`
	Queries        map[string]int64 `json:"queries" jsonschema:"Questions answered so far by status"`
	LatencyP50Ms   float64          `json:"latency_p50_ms" jsonschema:"Median answer latency in milliseconds"`
	LatencyP95Ms   float64          `json:"latency_p95_ms" jsonschema:"95th percentile answer latency in milliseconds"`
}

type documentInput struct {
	Path string `json:"path" jsonschema:"Path to a PDF or text filing"`
	Name string `json:"name" jsonschema:"Display name used in citations, e.g. 'Apple 10-K'"`
}

type ingestFilingsInput struct {
	Documents []documentInput `json:"documents,omitempty" jsonschema:"Documents to ingest (default: configured filings)"`
}

type failedDocument struct {
	Document string `json:"document" jsonschema:"Display name of the skipped document"`
	Error    string `json:"error" jsonschema:"Why the document was skipped"`
}

type ingestFilingsOutput struct {
	Succeeded  []string         `json:"succeeded" jsonschema:"Documents in the new index"`
	Failed     []failedDocument `json:"failed,omitempty" jsonschema:"Documents that were skipped"`
	Chunks     int              `json:"chunks" jsonschema:"Chunks in the new index"`
	Duplicates int              `json:"duplicates" jsonschema:"Duplicate chunks dropped"`
}

func (s *Server) registerIndexTools() error {
	err := addTool(s, &ToolMetadata{
		Name:        "index_status",
		Description: "Report whether the filings index is built, its size, and question statistics",
		Category:    CategoryIndex,
		Keywords:    []string{"status", "ready", "stats", "health"},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args indexStatusInput) (*mcp.CallToolResult, indexStatusOutput, error) {
		snap := s.qa.Stats().Snapshot()
		out := indexStatusOutput{
			Ready:          s.qa.Ready(),
			Chunks:         snap.IndexChunks,
			EmbeddingModel: snap.EmbeddingModel,
			Queries:        make(map[string]int64, len(snap.Queries)),
			LatencyP50Ms:   snap.LatencyP50Ms,
			LatencyP95Ms:   snap.LatencyP95Ms,
		}
		if !snap.LastRebuild.IsZero() {
			out.LastRebuild = snap.LastRebuild.UTC().Format(time.RFC3339)
		}
		for status, n := range snap.Queries {
			out.Queries[string(status)] = n
		}

		text := "Index not built"
		if out.Ready {
			text = fmt.Sprintf("Index ready: %d chunks (%s)", out.Chunks, out.EmbeddingModel)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, out, nil
	})
	if err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "ingest_filings",
		Description: "Extract, chunk and embed filings, then publish a new index",
		Category:    CategoryIndex,
		Keywords:    []string{"ingest", "index", "rebuild", "pdf"},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ingestFilingsInput) (*mcp.CallToolResult, ingestFilingsOutput, error) {
		docs := s.documents
		if len(args.Documents) > 0 {
			docs = make([]qa.Document, 0, len(args.Documents))
			for _, d := range args.Documents {
				abs, err := sanitize.Document(d.Name, d.Path, s.documentRoot)
				if err != nil {
					return nil, ingestFilingsOutput{}, err
				}
				doc := qa.Document{Path: d.Path, Name: d.Name}
				if s.documentRoot != "" {
					doc.Path = abs
				}
				docs = append(docs, doc)
			}
		}

		report, err := s.qa.Ingest(ctx, docs)
		if err != nil {
			return nil, ingestFilingsOutput{}, fmt.Errorf("ingest failed: %w", err)
		}

		out := ingestFilingsOutput{
			Succeeded:  report.Succeeded,
			Chunks:     report.Chunks,
			Duplicates: report.Duplicates,
		}
		for _, f := range report.Failed {
			out.Failed = append(out.Failed, failedDocument{Document: f.Document, Error: f.Err.Error()})
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(
				"Indexed %d chunks from %d document(s); %d skipped",
				out.Chunks, len(out.Succeeded), len(out.Failed))}},
		}, out, nil
	})
}

// ===== TOOL SEARCH TOOLS =====

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Regex pattern or search query matched against tool names, descriptions and keywords"`
	Category string `json:"category,omitempty" jsonschema:"Filter results to a category (query, index, search)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
}

type toolSearchOutput struct {
	Query      string          `json:"query" jsonschema:"Search query used"`
	Results    []*SearchResult `json:"results" jsonschema:"Matching tools with match score"`
	Count      int             `json:"count" jsonschema:"Number of tools found"`
	TotalTools int             `json:"total_tools" jsonschema:"Total number of tools in registry"`
}

type toolListInput struct {
	Category string `json:"category,omitempty" jsonschema:"Filter to a specific category"`
}

type toolListOutput struct {
	Tools []*ToolMetadata `json:"tools" jsonschema:"Registered tools with metadata"`
	Count int             `json:"count" jsonschema:"Number of tools returned"`
}

func (s *Server) registerSearchTools() error {
	err := addTool(s, &ToolMetadata{
		Name:        "tool_search",
		Description: "Search for available tools by name, description, or keyword",
		Category:    CategorySearch,
		Keywords:    []string{"discover", "find"},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
		if args.Query == "" {
			return nil, toolSearchOutput{}, fmt.Errorf("query is required")
		}
		limit := args.Limit
		if limit <= 0 {
			limit = 5
		}

		var results []*SearchResult
		if args.Category != "" {
			results = s.toolRegistry.SearchByCategory(args.Query, ToolCategory(args.Category))
		} else {
			results = s.toolRegistry.Search(args.Query)
		}
		if len(results) > limit {
			results = results[:limit]
		}
		if results == nil {
			results = []*SearchResult{}
		}

		names := make([]string, 0, len(results))
		for _, r := range results {
			names = append(names, r.Tool.Name)
		}
		text := fmt.Sprintf("No tools found matching: %s", args.Query)
		if len(names) > 0 {
			text = fmt.Sprintf("Found %d tool(s) for query '%s': %s", len(names), args.Query, strings.Join(names, ", "))
		}

		return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, toolSearchOutput{
				Query:      args.Query,
				Results:    results,
				Count:      len(results),
				TotalTools: s.toolRegistry.Count(),
			}, nil
	})
	if err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "tool_list",
		Description: "List all available tools with their metadata",
		Category:    CategorySearch,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args toolListInput) (*mcp.CallToolResult, toolListOutput, error) {
		tools := s.toolRegistry.List()
		if args.Category != "" {
			tools = s.toolRegistry.ListByCategory(ToolCategory(args.Category))
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d tools", len(tools))}},
		}, toolListOutput{Tools: tools, Count: len(tools)}, nil
	})
}
