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

// GeminiChecker checks mentions in Google Gemini answers
type GeminiChecker struct {
	apiKey string
	client *resty.Client
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiChecker creates a new Gemini checker
func NewGeminiChecker(apiKey string) *GeminiChecker {
	return &GeminiChecker{
		apiKey: apiKey,
		client: resty.New().SetTimeout(60 * time.Second),
	}
}

func (g *GeminiChecker) Name() string {
	return "gemini"
}

func (g *GeminiChecker) Enabled() bool {
	return g.apiKey != ""
}

func (g *GeminiChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	if !g.Enabled() {
		logrus.Debug("Gemini checker disabled - missing API key")
		return &models.CheckResult{}, nil
	}

	req := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: buildPrompt(query)}}},
		},
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(req).
		Post("https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent")

	if err := checkResponse(resp, err); err != nil {
		return nil, fmt.Errorf("gemini check: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("gemini check: parse response: %w", err)
	}

	var answer string
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			answer += part.Text
		}
	}
	if answer == "" {
		return &models.CheckResult{}, nil
	}

	return ParseAnswer(answer, client), nil
}
