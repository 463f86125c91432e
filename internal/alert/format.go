package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	issues := "none"
	if len(event.Issues) > 0 {
		issues = "• " + strings.Join(event.Issues, "\n• ")
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("geowatch: %s", titleFor(event.Type)),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Position:* %.6f, %.6f", event.Latitude, event.Longitude)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Accuracy:* %s", accuracyText(event.Accuracy))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Provider:* %s", event.Provider)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.Session)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": "*Issues:*\n" + issues},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "warning"
	switch event.Type {
	case EventInvalid, EventSpooferApps:
		severity = "error"
	case EventDevOptions:
		severity = "critical"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("geowatch %s: %s", event.Type, strings.Join(event.Issues, "; ")),
			"severity": severity,
			"source":   "geowatch",
			"custom_details": map[string]any{
				"latitude":    event.Latitude,
				"longitude":   event.Longitude,
				"accuracy":    event.Accuracy,
				"provider":    event.Provider,
				"session":     event.Session,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

func titleFor(eventType string) string {
	switch eventType {
	case EventInvalid:
		return "suspicious location"
	case EventUnavailable:
		return "location unavailable"
	case EventDevOptions:
		return "developer options enabled"
	case EventSpooferApps:
		return "spoofing app installed"
	default:
		return eventType
	}
}

func accuracyText(a *float64) string {
	if a == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1fm", *a)
}
