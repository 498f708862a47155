// Package newsapi is a thin client for the NewsAPI.org v2 endpoints used by
// the headlines source mode. Only the two read endpoints the pipeline needs
// are wrapped: /top-headlines for breaking news and /everything for
// date-windowed queries.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newspulse/newspulse/internal/logger"
)

const defaultBaseURL = "https://newsapi.org/v2"

// Article is one story as NewsAPI returns it. PublishedAt stays a raw
// ISO-8601 string; display normalization happens at digest-render time.
type Article struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// Client calls NewsAPI.org with a fixed API key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a headlines client. The timeout bounds each request.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TopHeadlines fetches current headlines from the given comma-separated
// source identifiers (e.g. "bbc-news,reuters").
func (c *Client) TopHeadlines(ctx context.Context, sources string, pageSize int) ([]Article, error) {
	params := url.Values{}
	params.Set("sources", sources)
	params.Set("pageSize", strconv.Itoa(pageSize))
	return c.get(ctx, "/top-headlines", params)
}

// Everything fetches stories from the given sources published inside
// [from, to], sorted by popularity. Unlike TopHeadlines it supports a date
// window, which is what the pipeline's lookback maps onto.
func (c *Client) Everything(ctx context.Context, sources string, from, to time.Time, pageSize int) ([]Article, error) {
	params := url.Values{}
	params.Set("sources", sources)
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("language", "en")
	params.Set("sortBy", "popularity")
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	return c.get(ctx, "/everything", params)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]Article, error) {
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create newsapi request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Status       string    `json:"status"`
		TotalResults int       `json:"totalResults"`
		Articles     []Article `json:"articles"`
		Code         string    `json:"code"`
		Message      string    `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse newsapi response: %w", err)
	}
	if apiResponse.Status != "ok" {
		return nil, fmt.Errorf("newsapi error (%s): %s", apiResponse.Code, apiResponse.Message)
	}

	logger.Info("newsapi fetch completed",
		"endpoint", endpoint,
		"articles", len(apiResponse.Articles),
		"total", apiResponse.TotalResults)

	return apiResponse.Articles, nil
}

// FormatArticles renders articles as the numbered block embedded in prompts.
// At most max articles are included; max <= 0 means no limit.
func FormatArticles(articles []Article, max int) string {
	if len(articles) == 0 {
		return "未获取到新闻头条"
	}
	if max > 0 && len(articles) > max {
		articles = articles[:max]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### 新闻头条（共%d条）\n\n", len(articles))
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. **%s**", i+1, a.Title)
		if a.Source.Name != "" {
			fmt.Fprintf(&b, " (%s)", a.Source.Name)
		}
		b.WriteString("\n")
		if a.PublishedAt != "" {
			fmt.Fprintf(&b, "   发布时间: %s\n", a.PublishedAt)
		}
		if desc := strings.ReplaceAll(a.Description, "\n", " "); desc != "" {
			fmt.Fprintf(&b, "   %s\n", desc)
		}
		fmt.Fprintf(&b, "   链接: %s\n\n", a.URL)
	}
	return b.String()
}
