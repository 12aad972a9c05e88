package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxListedNumbers keeps the alert under Slack's block size limits.
const maxListedNumbers = 10

type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	apiURL      string
	httpClient  *http.Client
}

var _ ports.AlertNotifier = (*SlackNotifier)(nil)

func NewSlackNotifier(botToken, channel, mentionTeam string) *SlackNotifier {
	return &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		apiURL:      slackPostMessageURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyHardeningSummary posts the result of a hardening run that flagged
// at least one number.
func (s *SlackNotifier) NotifyHardeningSummary(ctx context.Context, summary ports.HardeningSummary) error {
	total := 0
	for _, n := range summary.Flagged {
		total += n
	}

	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildHardeningBlocks(summary, total),
		Text:    fmt.Sprintf("🛡️ Reputation hardening flagged %d numbers", total),
	}
	return s.sendMessage(ctx, payload)
}

func (s *SlackNotifier) buildHardeningBlocks(summary ports.HardeningSummary, total int) []SlackBlock {
	reasons := make([]domain.FlagReason, 0, len(summary.Flagged))
	for reason := range summary.Flagged {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	fields := []SlackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Flagged*\n%d", total)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Dampened*\n%d", summary.Dampened)},
	}
	for _, reason := range reasons {
		fields = append(fields, SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%d", reason, summary.Flagged[reason])})
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: "🛡️ Reputation Hardening Report"},
		},
		{
			Type:   "section",
			Fields: fields,
		},
	}

	if len(summary.Numbers) > 0 {
		lines := make([]string, 0, maxListedNumbers+1)
		for i, h := range summary.Numbers {
			if i == maxListedNumbers {
				lines = append(lines, fmt.Sprintf("_...and %d more_", len(summary.Numbers)-maxListedNumbers))
				break
			}
			lines = append(lines, fmt.Sprintf("• `%s`", shortHash(h.String())))
		}
		blocks = append(blocks,
			SlackBlock{Type: "divider"},
			SlackBlock{
				Type: "section",
				Text: &SlackText{Type: "mrkdwn", Text: "*Flagged numbers*\n" + strings.Join(lines, "\n")},
			},
		)
	}

	blocks = append(blocks, SlackBlock{
		Type: "context",
		Elements: []SlackText{
			{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Run started %s | took %s",
					summary.StartedAt.UTC().Format(time.RFC3339), summary.Duration.Round(time.Millisecond)),
			},
		},
	})

	if s.mentionTeam != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("🔔 %s please review the flagged numbers", s.mentionTeam)},
		})
	}
	return blocks
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12] + "…"
}

func (s *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	var result slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("slack API error: %s", result.Error)
	}
	return nil
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // fallback for notifications
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
