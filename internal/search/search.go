// Package search wraps the Google Custom Search JSON API. It is both the
// acquisition backend for search mode and the capability the model may invoke
// through the web-search tool in agent mode.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newspulse/newspulse/internal/cache"
	"github.com/newspulse/newspulse/internal/logger"
)

// maxResultsCap is the hard per-request limit of the API.
const maxResultsCap = 10

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Result is one ranked search hit.
type Result struct {
	Title   string
	Snippet string
	Link    string
	Rank    int
}

type Client struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client

	memo    *cache.TTLCache
	memoTTL time.Duration
}

func NewClient(apiKey, engineID string, timeout time.Duration) *Client {
	return &Client{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EnableMemo caches responses for ttl, so scheduled runs inside the window
// reuse the previous answer instead of spending API quota again.
func (c *Client) EnableMemo(ttl time.Duration) {
	c.memo = cache.New()
	c.memoTTL = ttl
}

// Search runs one query and returns the ranked results. An empty result set
// comes back as an empty slice with a nil error: the caller must branch on
// emptiness, transport and API failures come back as errors.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 || maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}

	memoKey := cache.QueryKey(query, maxResults)
	if c.memo != nil {
		if cached, ok := c.memo.Get(memoKey); ok {
			logger.Debug("search memo hit", "query", query)
			return cached.([]Result), nil
		}
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if apiResponse.Error.Code != 0 {
		return nil, fmt.Errorf("search API error (%d): %s", apiResponse.Error.Code, apiResponse.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request returned status %d", resp.StatusCode)
	}

	results := make([]Result, 0, len(apiResponse.Items))
	for i, item := range apiResponse.Items {
		results = append(results, Result{
			Title:   item.Title,
			Snippet: item.Snippet,
			Link:    item.Link,
			Rank:    i + 1,
		})
	}

	logger.Info("search completed", "query", query, "results", len(results))

	if c.memo != nil {
		c.memo.Set(memoKey, results, c.memoTTL)
	}
	return results, nil
}

// FormatResults renders results as the numbered block embedded in prompts and
// returned to the model from tool calls. Empty input yields an explicit
// no-results line so the model is never left guessing.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("未找到有关\"%s\"的搜索结果", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### 搜索结果：\"%s\"\n\n", query)
	for _, r := range results {
		snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
		fmt.Fprintf(&b, "%d. **%s**\n", r.Rank, r.Title)
		fmt.Fprintf(&b, "   %s\n", snippet)
		fmt.Fprintf(&b, "   链接: %s\n\n", r.Link)
	}
	return b.String()
}
