// Package brief generates one-line Chinese summaries for headline articles
// through the OpenAI chat API. It is optional: without an API key the
// pipeline keeps the article's own description.
package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/newspulse/newspulse/internal/logger"
)

const (
	maxInputRunes  = 1000
	requestTimeout = 20 * time.Second
)

// Client wraps the OpenAI chat API for summary generation.
type Client struct {
	api *openai.Client
}

// NewClient builds a brief client from an API key.
func NewClient(apiKey string) *Client {
	return &Client{api: openai.NewClient(apiKey)}
}

// Summarize produces a one-line Chinese summary (around 30 characters) of
// the given article text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("nothing to summarize")
	}
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT3Dot5Turbo,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("请用中文生成一行新闻摘要（不超过30字）：%s", text),
		}},
		MaxCompletionTokens: 200,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate brief: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("brief response had no choices")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	logger.Debug("brief generated", "length", len(summary))
	return summary, nil
}
