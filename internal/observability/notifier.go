package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alerts to an external channel.
type Notifier interface {
	Notify(alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts to a Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts alerts as one message. An empty slice sends nothing.
func (s *slackNotifier) Notify(alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildSlackMessage renders one section per alert. Alerts raised by a
// document action carry the document and project as fields.
func buildSlackMessage(alerts []Alert) slackMessage {
	title := fmt.Sprintf("riskdesk: %d alerts", len(alerts))
	if len(alerts) == 1 {
		title = "riskdesk: " + alertTitle(alerts[0])
	}
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: title},
	}}

	for i, alert := range alerts {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		text := fmt.Sprintf("%s *%s*", severityEmoji(alert.Severity), alertTitle(alert))
		if alert.Message != "" {
			text += "\n" + alert.Message
		}
		section := slackBlock{
			Type:   "section",
			Text:   &slackText{Type: "mrkdwn", Text: text},
			Fields: subjectFields(alert),
		}
		blocks = append(blocks, section, slackBlock{
			Type: "context",
			Elements: []slackText{{
				Type: "mrkdwn",
				Text: fmt.Sprintf("%s | %s | %s",
					strings.ToUpper(string(alert.Severity)),
					alert.Condition,
					alert.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC")),
			}},
		})
	}
	return slackMessage{Text: title, Blocks: blocks}
}

func alertTitle(a Alert) string {
	switch {
	case a.Title != "":
		return a.Title
	case a.Condition != "":
		return strings.ReplaceAll(a.Condition, "_", " ")
	}
	return "alert"
}

func subjectFields(a Alert) []slackText {
	var fields []slackText
	if a.DocumentID != 0 {
		doc := fmt.Sprintf("#%d", a.DocumentID)
		if a.DocumentName != "" {
			doc += " " + a.DocumentName
		}
		fields = append(fields, slackText{Type: "mrkdwn", Text: "*Document*\n" + doc})
	}
	if a.ProjectID != "" {
		fields = append(fields, slackText{Type: "mrkdwn", Text: "*Project*\n" + a.ProjectID})
	}
	return fields
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
