package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ResultArchiver persists fetched search results and serves them back when
// the live endpoint is unavailable. Archiving is best-effort.
type ResultArchiver interface {
	ArchiveSearchResult(ctx context.Context, pageURL, content, summary string)
	SearchArchivedResults(ctx context.Context, query string, limit int) ([]models.MemoryFact, error)
}

// SearchTool queries a SearxNG-compatible JSON search endpoint and returns a
// source-annotated summary of the top results.
type SearchTool struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
	archiver   ResultArchiver
	logger     *logrus.Logger
}

// NewSearchTool creates the web search tool. archiver may be nil.
func NewSearchTool(cfg *config.SearchToolConfig, archiver ResultArchiver, logger *logrus.Logger) *SearchTool {
	return &SearchTool{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		archiver:   archiver,
		logger:     logger,
	}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Perform a web search to find relevant, up-to-date information. " +
		"Returns a summary of the top results with source links."
}

func (t *SearchTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"query": {Type: "string", Description: "The search query"},
		},
		Required: []string{"query"},
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Execute runs the search and formats the results. Missing or empty query is
// an executor error and propagates to the caller. When the live endpoint is
// unreachable, previously archived results are served instead.
func (t *SearchTool) Execute(ctx context.Context, args map[string]models.Value) (string, error) {
	query, ok := args["query"].AsString()
	if !ok || strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("search: missing query argument")
	}

	t.logger.WithField("query", query).Debug("Running web search")

	summary, err := t.liveSearch(ctx, query)
	if err != nil {
		if archived := t.archivedResults(ctx, query); archived != "" {
			t.logger.WithError(err).Warn("Web search failed, serving archived results")
			return archived, nil
		}
		return "", err
	}
	return summary, nil
}

func (t *SearchTool) liveSearch(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", t.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("search: failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("search: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search: endpoint returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("search: failed to parse response: %w", err)
	}

	if len(parsed.Results) == 0 {
		return fmt.Sprintf("No search results found for %q.", query), nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Search results for %q:\n", query))
	for i, r := range parsed.Results {
		if i >= t.maxResults {
			break
		}
		b.WriteString(fmt.Sprintf("%d. %s\n%s\nSource: %s\n", i+1, r.Title, r.Content, r.URL))

		if t.archiver != nil {
			t.archiver.ArchiveSearchResult(ctx, r.URL, r.Content, r.Title)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// archivedResults formats what the archive holds for the query, or "" when
// there is no archive or it has nothing to offer.
func (t *SearchTool) archivedResults(ctx context.Context, query string) string {
	if t.archiver == nil {
		return ""
	}

	facts, err := t.archiver.SearchArchivedResults(ctx, query, t.maxResults)
	if err != nil {
		t.logger.WithError(err).Warn("Failed to read archived search results")
		return ""
	}
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Previously archived results for %q:\n", query))
	for i, fact := range facts {
		title, _ := fact.Metadata["summary"].AsString()
		source, _ := fact.Metadata["url"].AsString()
		b.WriteString(fmt.Sprintf("%d. %s\n%s\nSource: %s\n", i+1, title, fact.Content, source))
	}
	return strings.TrimSpace(b.String())
}
