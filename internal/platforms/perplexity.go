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

// PerplexityChecker checks mentions in Perplexity answers. Perplexity speaks
// the OpenAI chat-completions dialect.
type PerplexityChecker struct {
	apiKey string
	client *resty.Client
}

// NewPerplexityChecker creates a new Perplexity checker
func NewPerplexityChecker(apiKey string) *PerplexityChecker {
	return &PerplexityChecker{
		apiKey: apiKey,
		client: resty.New().SetTimeout(60 * time.Second),
	}
}

func (p *PerplexityChecker) Name() string {
	return "perplexity"
}

func (p *PerplexityChecker) Enabled() bool {
	return p.apiKey != ""
}

func (p *PerplexityChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	if !p.Enabled() {
		logrus.Debug("Perplexity checker disabled - missing API key")
		return &models.CheckResult{}, nil
	}

	req := openAIRequest{
		Model: "sonar",
		Messages: []openAIMessage{
			{Role: "user", Content: buildPrompt(query)},
		},
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+p.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("https://api.perplexity.ai/chat/completions")

	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("perplexity check: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("perplexity check: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return &models.CheckResult{}, nil
	}

	return ParseAnswer(parsed.Choices[0].Message.Content, client), nil
}
