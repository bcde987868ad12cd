package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier posts run announcements to a Slack incoming webhook as
// Block Kit messages
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
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

// NewSlackNotifier returns a notifier for webhookURL. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func levelEmoji(l Level) string {
	switch l {
	case LevelSuccess:
		return ":white_check_mark:"
	case LevelWarning:
		return ":warning:"
	case LevelError:
		return ":x:"
	default:
		return ":house:"
	}
}

// slackMessage lays n out as a header, the message, one field per run
// figure and a context line naming the run
func slackMessage(n Notification) slackPayload {
	p := slackPayload{
		Text: n.Title,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: n.Title}},
		},
	}
	if n.Message != "" {
		p.Blocks = append(p.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: levelEmoji(n.Level) + " " + n.Message},
		})
	}
	if len(n.Fields) > 0 {
		fields := make([]slackText, 0, len(n.Fields))
		for _, f := range n.Fields {
			fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", f.Name, f.Value)})
		}
		p.Blocks = append(p.Blocks, slackBlock{Type: "section", Fields: fields})
	}
	if n.RunID != "" {
		p.Blocks = append(p.Blocks, slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: "Vacancy Verifier run `" + n.RunID + "`"}},
		})
	}
	return p
}

// Send posts n to the webhook
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(slackMessage(n))
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
