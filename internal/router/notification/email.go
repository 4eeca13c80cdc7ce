package notification

import (
	"fmt"
	"html"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/msgrouter/core/internal/router/warning"
)

// EmailConfig holds SMTP settings for the email notification sink.
type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
	ToAddress   string
	Enabled     bool
}

// EmailService sends formatted HTML emails for warnings.
type EmailService struct {
	config *EmailConfig
	auth   smtp.Auth
}

// NewEmailService creates an email notification sink.
func NewEmailService(config *EmailConfig) *EmailService {
	svc := &EmailService{config: config}

	if config.Username != "" && config.Password != "" {
		svc.auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPHost)
	}

	slog.Info("email notification sink initialized",
		"enabled", config.Enabled,
		"from", config.FromAddress,
		"to", config.ToAddress)

	return svc
}

// NotifyWarning sends an email notification for a warning.
func (s *EmailService) NotifyWarning(w *warning.Warning) {
	if !s.config.Enabled {
		return
	}

	subject := fmt.Sprintf("[msgrouter] %s - %s", w.Severity, w.Category)
	htmlBody := s.buildHTMLEmail(w)

	if err := s.sendMail(subject, htmlBody); err != nil {
		slog.Error("failed to send email notification", "error", err, "category", w.Category)
		return
	}

	slog.Info("email notification sent", "severity", w.Severity, "category", w.Category)
}

// IsEnabled returns whether email notifications are enabled.
func (s *EmailService) IsEnabled() bool {
	return s.config.Enabled
}

func (s *EmailService) sendMail(subject, htmlBody string) error {
	headers := map[string]string{
		"From":         s.config.FromAddress,
		"To":           s.config.ToAddress,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}

	var msg strings.Builder
	for k, v := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	return smtp.SendMail(addr, s.auth, s.config.FromAddress, []string{s.config.ToAddress}, []byte(msg.String()))
}

func (s *EmailService) buildHTMLEmail(w *warning.Warning) string {
	color := severityColor(w.Severity)
	timestamp := w.Timestamp.Format(time.RFC3339)

	return fmt.Sprintf(`
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 0; }
        .header { background-color: %s; color: white; padding: 20px; border-radius: 5px; }
        .content { padding: 20px; background-color: #f8f9fa; margin-top: 10px; border-radius: 5px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 20px; margin-bottom: 15px; }
        .metadata-item { flex: 1; min-width: 200px; }
        .metadata-label { font-weight: bold; color: #6c757d; }
        .message { background-color: white; padding: 15px; border-left: 4px solid %s; white-space: pre-wrap; }
        .footer { margin-top: 20px; padding: 10px; font-size: 12px; color: #6c757d; }
    </style>
</head>
<body>
    <div class="header">
        <h2 style="margin: 0;">%s - %s</h2>
    </div>
    <div class="content">
        <div class="metadata">
            <div class="metadata-item">
                <div class="metadata-label">Category</div>
                <div>%s</div>
            </div>
            <div class="metadata-item">
                <div class="metadata-label">Source</div>
                <div>%s</div>
            </div>
            <div class="metadata-item">
                <div class="metadata-label">Timestamp</div>
                <div>%s</div>
            </div>
        </div>
        <div class="metadata-label">Message</div>
        <div class="message">%s</div>
    </div>
    <div class="footer">
        msgrouter - automated notification
    </div>
</body>
</html>
`,
		color, color,
		w.Severity, html.EscapeString(w.Category),
		html.EscapeString(w.Category),
		html.EscapeString(w.Source),
		timestamp,
		html.EscapeString(w.Message))
}

func severityColor(severity string) string {
	switch strings.ToUpper(severity) {
	case warning.SeverityCritical:
		return "#dc3545"
	case warning.SeverityError:
		return "#fd7e14"
	case warning.SeverityWarn:
		return "#ffc107"
	case warning.SeverityInfo:
		return "#17a2b8"
	default:
		return "#6c757d"
	}
}
