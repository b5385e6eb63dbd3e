package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const slackHTTPTimeout = 10 * time.Second

// Event mirrors the hub's wire format: a type tag, a timestamp, and the
// loose data map the handlers attach.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// SlackNotifier posts dataset change events to a Slack-compatible
// incoming webhook, so a channel sees imports, bulk updates, and
// deletions as they happen.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	HTTPClient *http.Client
}

// NewSlackNotifier creates a notifier for the given webhook.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Channel:    channel,
		HTTPClient: &http.Client{Timeout: slackHTTPTimeout},
	}
}

// Forward relays hub payloads until the channel closes. Run it on its own
// goroutine. Delivery failures are logged, never fatal; if deliveries are
// slow enough to overflow the subscription buffer the hub drops this
// consumer and Forward returns.
func (s *SlackNotifier) Forward(events <-chan []byte) {
	for payload := range events {
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("[Notify] Skipping undecodable event: %v", err)
			continue
		}
		if err := s.Send(ev); err != nil {
			log.Printf("[Notify] Slack delivery failed: %v", err)
		}
	}
	log.Printf("[Notify] Event stream closed, notifier stopping")
}

// slackMessage is the incoming-webhook payload shape.
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color     string             `json:"color"`
	Title     string             `json:"title"`
	Text      string             `json:"text,omitempty"`
	Fields    []slackAttachField `json:"fields,omitempty"`
	Footer    string             `json:"footer,omitempty"`
	Timestamp int64              `json:"ts,omitempty"`
}

type slackAttachField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Send posts one event to the webhook.
func (s *SlackNotifier) Send(ev Event) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	msg := slackMessage{
		Username:  "FIO Analyzer",
		IconEmoji: ":bar_chart:",
		Text:      eventTitle(ev.Type),
		Attachments: []slackAttachment{
			{
				Color:     eventColor(ev.Type),
				Title:     eventTitle(ev.Type),
				Fields:    eventFields(ev.Data),
				Footer:    "FIO Analyzer",
				Timestamp: ev.Timestamp.Unix(),
			},
		},
	}
	if s.Channel != "" {
		msg.Channel = s.Channel
	}
	return s.post(msg)
}

// eventTitle maps the hub's event types to channel-readable titles.
// Unknown types pass through so new events still notify.
func eventTitle(eventType string) string {
	switch eventType {
	case "test_run_imported":
		return "Test run imported"
	case "test_runs_updated":
		return "Test runs updated"
	case "test_runs_deleted":
		return "Test runs deleted"
	}
	return eventType
}

func eventColor(eventType string) string {
	switch eventType {
	case "test_run_imported":
		return "good"
	case "test_runs_deleted":
		return "danger"
	}
	return "#439FE0"
}

// eventFields flattens the event data into attachment fields, in a fixed
// order so messages read consistently.
func eventFields(data map[string]any) []slackAttachField {
	names := []string{
		"hostname", "test_name", "test_run_id",
		"test_run_ids", "updated", "imported", "source",
	}
	var fields []slackAttachField
	for _, name := range names {
		v, ok := data[name]
		if !ok {
			continue
		}
		fields = append(fields, slackAttachField{
			Title: name,
			Value: fmt.Sprintf("%v", v),
			Short: true,
		})
	}
	return fields
}

func (s *SlackNotifier) post(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest("POST", s.WebhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}
	return nil
}
