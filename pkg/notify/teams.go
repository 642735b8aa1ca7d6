package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/core-tools/hsu-spotbot/pkg/logging"
)

type AlertFormat string

const (
	AlertFormatAdaptiveCard AlertFormat = "adaptive"
	// AlertFormatMessageCard is the legacy Office 365 connector card
	AlertFormatMessageCard AlertFormat = "messagecard"
)

// TeamsConfig points at a Teams incoming webhook or workflow URL
type TeamsConfig struct {
	WebhookURL string
	Format     AlertFormat
}

type teamsSink struct {
	config TeamsConfig
	poster *poster
	logger logging.Logger
}

// NewTeamsSink returns a no-op sink when no webhook is configured
func NewTeamsSink(config TeamsConfig, options HTTPOptions, logger logging.Logger) AlertSink {
	if config.WebhookURL == "" {
		return NopAlertSink()
	}
	if config.Format == "" {
		config.Format = AlertFormatAdaptiveCard
	}
	return &teamsSink{
		config: config,
		poster: newPoster(options, false, logger),
		logger: logger,
	}
}

func (s *teamsSink) Notify(ctx context.Context, alert Alert) {
	body, err := encodeAlert(s.config.Format, alert)
	if err != nil {
		s.logger.Errorf("Failed to encode alert, title: %s, error: %v", alert.Title, err)
		return
	}

	if err := s.poster.post(ctx, s.config.WebhookURL, "application/json", body, nil); err != nil {
		s.logger.Errorf("Failed to send Teams alert, title: %s, error: %v", alert.Title, err)
		return
	}
	s.logger.Infof("Teams alert sent, title: %s", alert.Title)
}

type adaptiveMessage struct {
	Type        string               `json:"type"`
	Attachments []adaptiveAttachment `json:"attachments"`
}

type adaptiveAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string          `json:"$schema"`
	Type    string          `json:"type"`
	Version string          `json:"version"`
	Body    []cardTextBlock `json:"body"`
}

type cardTextBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type messageCard struct {
	Type       string               `json:"@type"`
	Context    string               `json:"@context"`
	ThemeColor string               `json:"themeColor"`
	Summary    string               `json:"summary"`
	Sections   []messageCardSection `json:"sections"`
}

type messageCardSection struct {
	ActivityTitle string `json:"activityTitle"`
	Text          string `json:"text"`
}

func encodeAlert(format AlertFormat, alert Alert) ([]byte, error) {
	switch format {
	case AlertFormatAdaptiveCard:
		color := "Good"
		if alert.IsError {
			color = "Attention"
		}
		return json.Marshal(adaptiveMessage{
			Type: "message",
			Attachments: []adaptiveAttachment{{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body: []cardTextBlock{
						{Type: "TextBlock", Text: alert.Title, Weight: "Bolder", Size: "Medium", Color: color},
						{Type: "TextBlock", Text: alert.Body, Wrap: true},
					},
				},
			}},
		})
	case AlertFormatMessageCard:
		themeColor := "00FF00"
		if alert.IsError {
			themeColor = "FF0000"
		}
		return json.Marshal(messageCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: themeColor,
			Summary:    alert.Title,
			Sections:   []messageCardSection{{ActivityTitle: alert.Title, Text: alert.Body}},
		})
	default:
		return nil, fmt.Errorf("unsupported alert format: %s", format)
	}
}
