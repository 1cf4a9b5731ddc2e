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

// ChatGPTChecker checks mentions in OpenAI ChatGPT answers
type ChatGPTChecker struct {
	apiKey string
	client *resty.Client
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// NewChatGPTChecker creates a new ChatGPT checker
func NewChatGPTChecker(apiKey string) *ChatGPTChecker {
	return &ChatGPTChecker{
		apiKey: apiKey,
		client: resty.New().SetTimeout(60 * time.Second),
	}
}

func (c *ChatGPTChecker) Name() string {
	return "chatgpt"
}

func (c *ChatGPTChecker) Enabled() bool {
	return c.apiKey != ""
}

func (c *ChatGPTChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	if !c.Enabled() {
		logrus.Debug("ChatGPT checker disabled - missing API key")
		return &models.CheckResult{}, nil
	}

	req := openAIRequest{
		Model: "gpt-4o-mini",
		Messages: []openAIMessage{
			{Role: "user", Content: buildPrompt(query)},
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("https://api.openai.com/v1/chat/completions")

	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("chatgpt check: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("chatgpt check: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return &models.CheckResult{}, nil
	}

	return ParseAnswer(parsed.Choices[0].Message.Content, client), nil
}
