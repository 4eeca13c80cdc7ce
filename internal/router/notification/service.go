// Package notification escalates warnings emitted through the warning
// service to external channels (email, Teams) once they cross a
// configured severity floor.
package notification

import (
	"github.com/msgrouter/core/internal/router/warning"
)

// Service sends a warning to an external channel.
type Service interface {
	NotifyWarning(w *warning.Warning)
	IsEnabled() bool
}

var severityOrder = []string{
	warning.SeverityInfo,
	warning.SeverityWarn,
	warning.SeverityError,
	warning.SeverityCritical,
}

func severityIndex(severity string) int {
	for i, s := range severityOrder {
		if s == severity {
			return i
		}
	}
	return 0
}

// MeetsMinSeverity reports whether severity is at or above minSeverity.
func MeetsMinSeverity(severity, minSeverity string) bool {
	return severityIndex(severity) >= severityIndex(minSeverity)
}
