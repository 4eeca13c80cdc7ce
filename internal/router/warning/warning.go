package warning

import "time"

// Severity levels for warnings
const (
	SeverityCritical = "CRITICAL"
	SeverityError    = "ERROR"
	SeverityWarn     = "WARN"
	SeverityInfo     = "INFO"
)

// Warning kinds
const (
	KindMediation          = "MEDIATION"
	KindConfiguration      = "CONFIGURATION"
	KindProcessing         = "PROCESSING"
	KindLeak               = "LEAK"
	KindUnknownPool        = "UNKNOWN_POOL"
	KindPoolLimitExceeded  = "POOL_LIMIT_EXCEEDED"
	KindMediatorNullResult = "MEDIATOR_NULL_RESULT"
	KindParseError         = "PARSE_ERROR"
)

// Warning represents a system warning or error notification
type Warning struct {
	// ID is the unique warning identifier (UUID)
	ID string `json:"id"`

	// Category is the warning category (e.g., MEDIATION, UNKNOWN_POOL)
	Category string `json:"category"`

	// Severity is the severity level (CRITICAL, ERROR, WARN, INFO)
	Severity string `json:"severity"`

	// Message describes the issue
	Message string `json:"message"`

	// Timestamp is when the warning was created
	Timestamp time.Time `json:"timestamp"`

	// Source is the component that generated the warning
	Source string `json:"source"`

	// Acknowledged indicates if the warning has been acknowledged
	Acknowledged bool `json:"acknowledged"`
}
