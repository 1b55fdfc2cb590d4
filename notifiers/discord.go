// Package notifiers delivers ingestion events to outbound sinks. Delivery
// is best effort: a failed send is logged and never surfaces to the
// scheduler.
package notifiers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonnylitten/bountyping/models"
	"github.com/sirupsen/logrus"
)

// Notifier is the event sink contract consumed by the scheduler.
type Notifier interface {
	SendBatchSummary(newCount, updatedCount int, source string) bool
	SendNewProgram(program *models.Program) bool
}

// DiscordNotifier posts run summaries and new-program alerts to a Discord
// webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title  string              `json:"title"`
	URL    string              `json:"url,omitempty"`
	Color  int                 `json:"color"`
	Fields []discordEmbedField `json:"fields,omitempty"`
	Footer map[string]string   `json:"footer,omitempty"`
}

// SendBatchSummary posts a per-source run summary. Nothing is sent when
// there were no new or updated programs.
func (n *DiscordNotifier) SendBatchSummary(newCount, updatedCount int, source string) bool {
	if n.webhookURL == "" || (newCount == 0 && updatedCount == 0) {
		return false
	}

	var message strings.Builder
	fmt.Fprintf(&message, "**%s Scrape Complete**\n", titleCase(source))
	if newCount > 0 {
		fmt.Fprintf(&message, "%d new program(s)\n", newCount)
	}
	if updatedCount > 0 {
		fmt.Fprintf(&message, "%d updated program(s)", updatedCount)
	}

	return n.send(map[string]interface{}{"content": message.String()})
}

// SendNewProgram posts an alert for a single newly discovered program.
func (n *DiscordNotifier) SendNewProgram(program *models.Program) bool {
	if n.webhookURL == "" {
		logrus.Warn("Discord webhook URL not configured")
		return false
	}

	fields := []discordEmbedField{
		{Name: "Platform", Value: titleCase(program.Platform), Inline: true},
		{Name: "Bounty", Value: program.BountyRange(), Inline: true},
	}

	if len(program.AssetTypes) > 0 {
		fields = append(fields, discordEmbedField{
			Name:  "Asset Types",
			Value: strings.Join(program.AssetTypes, ", "),
		})
	}

	if len(program.Assets) > 0 {
		preview := strings.Join(program.Assets[:min(5, len(program.Assets))], ", ")
		if len(program.Assets) > 5 {
			preview += fmt.Sprintf(" (+%d more)", len(program.Assets)-5)
		}
		fields = append(fields, discordEmbedField{
			Name:  "Scope Preview",
			Value: "`" + preview + "`",
		})
	}

	embed := discordEmbed{
		Title:  "New Bug Bounty: " + program.Name,
		URL:    program.URL,
		Color:  0x00ff00,
		Fields: fields,
		Footer: map[string]string{"text": "BountyPing"},
	}

	return n.send(map[string]interface{}{"embeds": []discordEmbed{embed}})
}

func (n *DiscordNotifier) send(payload map[string]interface{}) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("Failed to encode Discord payload: %v", err)
		return false
	}

	response, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		logrus.Errorf("Failed to send Discord notification: %v", err)
		return false
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		logrus.Errorf("Discord webhook returned %s", response.Status)
		return false
	}

	logrus.Debug("Discord notification sent")
	return true
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
