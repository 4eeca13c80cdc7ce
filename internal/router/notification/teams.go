package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/msgrouter/core/internal/router/warning"
)

// TeamsConfig holds webhook settings for the Teams notification sink.
type TeamsConfig struct {
	WebhookURL string
	Enabled    bool
}

// TeamsService posts Adaptive Cards to a Teams channel webhook.
type TeamsService struct {
	config     *TeamsConfig
	httpClient *http.Client
}

// NewTeamsService creates a Teams webhook notification sink.
func NewTeamsService(config *TeamsConfig) *TeamsService {
	slog.Info("teams notification sink initialized", "enabled", config.Enabled)

	return &TeamsService{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NotifyWarning posts a Teams notification for a warning.
func (s *TeamsService) NotifyWarning(w *warning.Warning) {
	if !s.config.Enabled {
		return
	}

	card := s.buildAdaptiveCard(w)
	if err := s.sendToTeams(card); err != nil {
		slog.Error("failed to send teams notification", "error", err, "category", w.Category)
		return
	}

	slog.Info("teams notification sent", "severity", w.Severity, "category", w.Category)
}

// IsEnabled returns whether Teams notifications are enabled.
func (s *TeamsService) IsEnabled() bool {
	return s.config.Enabled
}

func (s *TeamsService) sendToTeams(adaptiveCardJSON string) error {
	req, err := http.NewRequest(http.MethodPost, s.config.WebhookURL, bytes.NewBufferString(adaptiveCardJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *TeamsService) buildAdaptiveCard(w *warning.Warning) string {
	color := teamsSeverityColor(w.Severity)
	timestamp := w.Timestamp.Format(time.RFC3339)

	card := map[string]interface{}{
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"version": "1.4",
					"body": []map[string]interface{}{
						{
							"type":  "Container",
							"style": "emphasis",
							"items": []map[string]interface{}{
								{
									"type": "ColumnSet",
									"columns": []map[string]interface{}{
										{
											"type":  "Column",
											"width": "auto",
											"items": []map[string]interface{}{
												{"type": "TextBlock", "text": "⚠️", "size": "Large"},
											},
										},
										{
											"type":  "Column",
											"width": "stretch",
											"items": []map[string]interface{}{
												{"type": "TextBlock", "text": "msgrouter alert", "weight": "Bolder", "size": "Large"},
												{"type": "TextBlock", "text": fmt.Sprintf("%s - %s", w.Severity, w.Category), "color": color, "weight": "Bolder", "size": "Medium", "spacing": "None"},
											},
										},
									},
								},
							},
						},
						{
							"type": "FactSet",
							"facts": []map[string]interface{}{
								{"title": "Category:", "value": w.Category},
								{"title": "Source:", "value": w.Source},
								{"title": "Time:", "value": timestamp},
							},
						},
						{"type": "TextBlock", "text": "Message", "weight": "Bolder", "separator": true},
						{"type": "TextBlock", "text": w.Message, "wrap": true, "spacing": "Small"},
					},
				},
			},
		},
	}

	jsonBytes, _ := json.Marshal(card)
	return string(jsonBytes)
}

func teamsSeverityColor(severity string) string {
	switch strings.ToUpper(severity) {
	case warning.SeverityCritical, warning.SeverityError:
		return "Attention"
	case warning.SeverityWarn:
		return "Warning"
	case warning.SeverityInfo:
		return "Accent"
	default:
		return "Default"
	}
}
