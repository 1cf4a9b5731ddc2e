package platforms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/citelens/citelens/internal/models"
	"github.com/go-resty/resty/v2"
)

// listEntry matches a numbered or bulleted recommendation line in an answer.
var listEntry = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)

// ParseAnswer scans an assistant's answer for a mention of the client. When
// the mention sits inside a numbered or bulleted list, its rank among the
// entries becomes the observed position; a mention in running prose is
// recorded without a position.
func ParseAnswer(answer string, client *models.Client) *models.CheckResult {
	terms := mentionTerms(client)
	if len(terms) == 0 {
		return &models.CheckResult{}
	}

	rank := 0
	for _, line := range strings.Split(answer, "\n") {
		if !listEntry.MatchString(line) {
			continue
		}
		rank++
		if containsAny(strings.ToLower(line), terms) {
			pos := rank
			return &models.CheckResult{
				Found:    true,
				Position: &pos,
				Context:  strings.TrimSpace(line),
			}
		}
	}

	for _, line := range strings.Split(answer, "\n") {
		if containsAny(strings.ToLower(line), terms) {
			return &models.CheckResult{
				Found:   true,
				Context: strings.TrimSpace(line),
			}
		}
	}

	return &models.CheckResult{}
}

func mentionTerms(client *models.Client) []string {
	var terms []string
	if name := strings.TrimSpace(client.Name); name != "" {
		terms = append(terms, strings.ToLower(name))
	}
	for _, kw := range client.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			terms = append(terms, strings.ToLower(kw))
		}
	}
	return terms
}

func containsAny(content string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(content, term) {
			return true
		}
	}
	return false
}

// checkResponse maps transport and HTTP failures onto the transient error
// taxonomy so the orchestrator can decide what to retry.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	switch {
	case resp.StatusCode() == 429:
		return fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode() >= 400:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// buildPrompt phrases the monitoring query the way a prospect would ask it.
func buildPrompt(query string) string {
	return fmt.Sprintf("%s\n\nPlease list specific companies or products where relevant.", query)
}
