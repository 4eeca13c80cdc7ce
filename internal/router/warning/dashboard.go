package warning

import "github.com/msgrouter/core/internal/router/health"

// DashboardAdapter bridges a Service to the monitoring dashboard's
// health.WarningGetter and related interfaces, which operate on *health.Warning
// rather than the local Warning type.
type DashboardAdapter struct {
	svc Service
}

// NewDashboardAdapter wraps a warning service for dashboard consumption.
func NewDashboardAdapter(svc Service) *DashboardAdapter {
	return &DashboardAdapter{svc: svc}
}

// GetAllWarnings implements health.WarningGetter.
func (a *DashboardAdapter) GetAllWarnings() []*health.Warning {
	return toHealthWarnings(a.svc.GetAllWarnings())
}

// GetUnacknowledgedWarnings implements health.WarningGetter.
func (a *DashboardAdapter) GetUnacknowledgedWarnings() []*health.Warning {
	return toHealthWarnings(a.svc.GetUnacknowledgedWarnings())
}

// GetWarningsBySeverity implements api.WarningSeverityGetter.
func (a *DashboardAdapter) GetWarningsBySeverity(severity string) []*health.Warning {
	return toHealthWarnings(a.svc.GetWarningsBySeverity(severity))
}

// AcknowledgeWarning implements api.WarningMutator.
func (a *DashboardAdapter) AcknowledgeWarning(id string) bool {
	return a.svc.AcknowledgeWarning(id)
}

// ClearAllWarnings implements api.WarningMutator.
func (a *DashboardAdapter) ClearAllWarnings() {
	a.svc.ClearAllWarnings()
}

// ClearOldWarnings implements api.WarningMutator.
func (a *DashboardAdapter) ClearOldWarnings(hours int) {
	a.svc.ClearOldWarnings(hours)
}

func toHealthWarnings(ws []Warning) []*health.Warning {
	out := make([]*health.Warning, len(ws))
	for i, w := range ws {
		out[i] = &health.Warning{
			ID:           w.ID,
			Category:     w.Category,
			Severity:     w.Severity,
			Message:      w.Message,
			Timestamp:    w.Timestamp,
			Source:       w.Source,
			Acknowledged: w.Acknowledged,
		}
	}
	return out
}
