package notification

import (
	"log/slog"

	"github.com/msgrouter/core/internal/router/warning"
)

// NoOpService logs notifications instead of sending them anywhere.
type NoOpService struct{}

// NewNoOpService creates a no-op notification sink.
func NewNoOpService() *NoOpService {
	return &NoOpService{}
}

// NotifyWarning logs the warning.
func (s *NoOpService) NotifyWarning(w *warning.Warning) {
	slog.Info("notification (noop)", "severity", w.Severity, "category", w.Category, "message", w.Message, "source", w.Source)
}

// IsEnabled always returns false.
func (s *NoOpService) IsEnabled() bool {
	return false
}
