package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/citelens/citelens/internal/config"
	"github.com/citelens/citelens/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending reports via configured channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends a report via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	var errs []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(report); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errs = append(errs, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent report to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errs = append(errs, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent report via email")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(report *models.Report) error {
	message := s.buildTeamsMessage(report)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Citation Report - %s", titleCase(report.Period)),
		Text:    fmt.Sprintf("%d citations tracked across %d clients", report.TotalCitations, len(report.Clients)),
	}

	for _, cr := range report.Clients {
		facts := []TeamsFact{
			{Name: "Total Citations", Value: fmt.Sprintf("%d", cr.Rollup.TotalCitations)},
			{Name: "This Month", Value: fmt.Sprintf("%d", cr.Rollup.CitationsThisMonth)},
			{Name: "Avg Position", Value: fmt.Sprintf("%.1f", cr.Rollup.AvgPosition)},
		}
		if cr.Rollup.TopPlatform != "" {
			facts = append(facts, TeamsFact{Name: "Top Platform", Value: cr.Rollup.TopPlatform})
		}
		for sentiment, count := range cr.Rollup.SentimentBreakdown {
			facts = append(facts, TeamsFact{
				Name:  fmt.Sprintf("%s Citations", titleCase(string(sentiment))),
				Value: fmt.Sprintf("%d", count),
			})
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: cr.Client.Name,
			Facts:         facts,
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.Report) error {
	subject := fmt.Sprintf("Citation Report - %s (%d citations)",
		titleCase(report.Period), report.TotalCitations)

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(report)

	// Create message
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	// Send email
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailHTML(report *models.Report) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Citation Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #4b3f72; color: white; padding: 20px; border-radius: 5px; }
        .client { border-left: 4px solid #4b3f72; padding: 10px; margin: 15px 0; background-color: #fafafa; }
        .client-name { font-weight: bold; margin-bottom: 5px; }
        .stats { color: #444; font-size: 0.95em; }
        table { border-collapse: collapse; margin-top: 8px; }
        td, th { padding: 4px 10px; text-align: left; border-bottom: 1px solid #ddd; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Citation Report</h1>
        <p>{{.Period | title}} report generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <p><strong>Total Citations:</strong> {{.TotalCitations}}</p>

    {{range .Clients}}
    <div class="client">
        <div class="client-name">{{.Client.Name}}</div>
        <div class="stats">
            Total: {{.Rollup.TotalCitations}} |
            This month: {{.Rollup.CitationsThisMonth}} |
            Avg position: {{printf "%.1f" .Rollup.AvgPosition}}
            {{if .Rollup.TopPlatform}} | Top platform: {{.Rollup.TopPlatform}}{{end}}
        </div>
        {{if .TopQueries}}
        <table>
            <tr><th>Query</th><th>Citations</th><th>Avg Position</th></tr>
            {{range .TopQueries}}
            <tr><td>{{.Query}}</td><td>{{.CitationCount}}</td><td>{{printf "%.1f" .AvgPosition}}</td></tr>
            {{end}}
        </table>
        {{end}}
    </div>
    {{end}}

    <hr>
    <p><small>This report was generated automatically by CiteLens.</small></p>
</body>
</html>
`

	t := template.New("email").Funcs(template.FuncMap{
		"title": titleCase,
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Citation Report - %s\n", titleCase(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Total Citations: %d\n", report.TotalCitations))

	for _, cr := range report.Clients {
		text.WriteString(fmt.Sprintf("\n%s\n", cr.Client.Name))
		text.WriteString(fmt.Sprintf("  Total: %d | This month: %d | Avg position: %.1f\n",
			cr.Rollup.TotalCitations, cr.Rollup.CitationsThisMonth, cr.Rollup.AvgPosition))
		if cr.Rollup.TopPlatform != "" {
			text.WriteString(fmt.Sprintf("  Top platform: %s\n", cr.Rollup.TopPlatform))
		}
		for i, qs := range cr.TopQueries {
			text.WriteString(fmt.Sprintf("  %d. %s (%d citations, avg position %.1f)\n",
				i+1, qs.Query, qs.CitationCount, qs.AvgPosition))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by CiteLens.\n")

	return text.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
