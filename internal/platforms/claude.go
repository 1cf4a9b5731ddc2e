package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ClaudeChecker checks mentions in Anthropic Claude answers
type ClaudeChecker struct {
	apiKey string
	client *resty.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeChecker creates a new Claude checker
func NewClaudeChecker(apiKey string) *ClaudeChecker {
	return &ClaudeChecker{
		apiKey: apiKey,
		client: resty.New().SetTimeout(60 * time.Second),
	}
}

func (c *ClaudeChecker) Name() string {
	return "claude"
}

func (c *ClaudeChecker) Enabled() bool {
	return c.apiKey != ""
}

func (c *ClaudeChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	if !c.Enabled() {
		logrus.Debug("Claude checker disabled - missing API key")
		return &models.CheckResult{}, nil
	}

	req := anthropicRequest{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 1024,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildPrompt(query)},
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("https://api.anthropic.com/v1/messages")

	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("claude check: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("claude check: parse response: %w", err)
	}

	var answer string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			answer += block.Text
		}
	}
	if answer == "" {
		return &models.CheckResult{}, nil
	}

	return ParseAnswer(answer, client), nil
}
