package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/msgrouter/core/internal/router/warning"
)

// EscalatingWarningService wraps a warning.Service and forwards warnings
// that meet minSeverity to an external notification sink, in addition to
// recording them normally.
type EscalatingWarningService struct {
	warning.Service

	sink        Service
	minSeverity string
}

// NewEscalatingWarningService wraps base, escalating warnings at or above
// minSeverity to sink.
func NewEscalatingWarningService(base warning.Service, sink Service, minSeverity string) *EscalatingWarningService {
	return &EscalatingWarningService{
		Service:     base,
		sink:        sink,
		minSeverity: minSeverity,
	}
}

// AddWarning records the warning via the wrapped service, then escalates it
// to the notification sink if it meets the configured severity floor.
func (s *EscalatingWarningService) AddWarning(category, severity, message, source string) {
	s.Service.AddWarning(category, severity, message, source)

	if s.sink == nil || !s.sink.IsEnabled() {
		return
	}
	if !MeetsMinSeverity(severity, s.minSeverity) {
		return
	}

	s.sink.NotifyWarning(&warning.Warning{
		ID:        uuid.New().String(),
		Category:  category,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
		Source:    source,
	})
}
