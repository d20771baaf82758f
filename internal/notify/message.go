package notify

import (
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"alerto-service/internal/model"
)

// Notification channel identifiers, shared with the browser client
const (
	channelReports = "reports"
	channelUpdates = "updates"
	channelAlerts  = "alerts"
)

const descriptionSnippetLen = 100

// newReportMessage composes the municipality broadcast for a fresh report
func newReportMessage(ev model.ReportCreatedEvent, topic string) *messaging.Message {
	disasterType := ev.DisasterType
	if disasterType == "" {
		disasterType = "unknown"
	}
	severity := ev.Severity
	if severity == "" {
		severity = "unknown"
	}

	body := fmt.Sprintf("Severity: %s. %s", severity, descriptionSnippet(ev.Description))

	priority := messaging.PriorityHigh
	if ev.Severity == "critical" {
		priority = messaging.PriorityMax
	}

	badge := 1
	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("New %s Report in %s", disasterType, ev.Municipality),
			Body:  body,
		},
		Data: map[string]string{
			"report_id":     ev.ReportID,
			"type":          "new_report",
			"municipality":  ev.Municipality,
			"disaster_type": disasterType,
			"severity":      severity,
			"url":           fmt.Sprintf("/#map?report=%s", ev.ReportID),
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ChannelID: channelReports,
				Priority:  priority,
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
}

// verificationContent maps a notifiable status to notification text.
// Callers gate on VerificationStatus.Notifiable first.
func verificationContent(status model.VerificationStatus) (title, body string) {
	switch status {
	case model.StatusVerified:
		return "Report Verified", "Your report has been verified by authorities."
	case model.StatusRejected:
		return "Report Update", "Your report has been reviewed."
	case model.StatusResolved:
		return "Report Resolved", "Your report has been marked as resolved."
	default:
		return "", ""
	}
}

// newVerificationMessage composes one per-token message for the reporter
func newVerificationMessage(ev model.VerificationChangedEvent, title, body, token string) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"report_id": ev.ReportID,
			"type":      "verification_update",
			"status":    string(ev.NewStatus),
			"url":       fmt.Sprintf("/#feed?report=%s", ev.ReportID),
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ChannelID: channelUpdates,
				Priority:  messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

// newAlertMessage composes an admin broadcast
func newAlertMessage(title, body, topic string) *messaging.Message {
	badge := 1
	return &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type": "admin_alert",
			"url":  "/#feed",
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ChannelID: channelAlerts,
				Priority:  messaging.PriorityMax,
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
}

func descriptionSnippet(description string) string {
	if description == "" {
		return "Tap to view details."
	}
	runes := []rune(description)
	if len(runes) <= descriptionSnippetLen {
		return description
	}
	return string(runes[:descriptionSnippetLen])
}
