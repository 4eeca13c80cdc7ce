package notification

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msgrouter/core/internal/router/warning"
)

// BatchingConfig controls how warnings are grouped before delivery.
type BatchingConfig struct {
	MinSeverity string
	BatchWindow time.Duration
}

// DefaultBatchingConfig returns the default batching configuration.
func DefaultBatchingConfig() *BatchingConfig {
	return &BatchingConfig{
		MinSeverity: warning.SeverityError,
		BatchWindow: 5 * time.Minute,
	}
}

// BatchingService collects warnings over BatchWindow and sends a single
// summary notification to all delegates when SendBatch is called. Only
// warnings at or above MinSeverity are collected.
type BatchingService struct {
	mu sync.Mutex

	delegates      []Service
	config         *BatchingConfig
	batch          []*warning.Warning
	batchStartTime time.Time
}

// NewBatchingService creates a batching notification sink fanning out to delegates.
func NewBatchingService(delegates []Service, config *BatchingConfig) *BatchingService {
	if config == nil {
		config = DefaultBatchingConfig()
	}

	slog.Info("batching notification sink initialized",
		"delegates", len(delegates),
		"minSeverity", config.MinSeverity,
		"batchWindow", config.BatchWindow)

	return &BatchingService{
		delegates:      delegates,
		config:         config,
		batch:          make([]*warning.Warning, 0),
		batchStartTime: time.Now(),
	}
}

// NotifyWarning adds a warning to the current batch.
func (s *BatchingService) NotifyWarning(w *warning.Warning) {
	if !MeetsMinSeverity(w.Severity, s.config.MinSeverity) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, w)
}

// IsEnabled returns true if any delegate is enabled.
func (s *BatchingService) IsEnabled() bool {
	for _, d := range s.delegates {
		if d.IsEnabled() {
			return true
		}
	}
	return false
}

// SendBatch flushes the current batch to all delegates as one summary
// notification per delegate. Meant to be driven by a periodic ticker.
func (s *BatchingService) SendBatch() {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}

	warnings := make([]*warning.Warning, len(s.batch))
	copy(warnings, s.batch)
	batchEndTime := time.Now()
	batchStartTime := s.batchStartTime

	s.batch = make([]*warning.Warning, 0)
	s.batchStartTime = time.Now()
	s.mu.Unlock()

	slog.Info("sending batched notification",
		"count", len(warnings), "startTime", batchStartTime, "endTime", batchEndTime)

	bySeverity := make(map[string][]*warning.Warning)
	for _, w := range warnings {
		bySeverity[w.Severity] = append(bySeverity[w.Severity], w)
	}

	for _, delegate := range s.delegates {
		s.sendSummaryToDelegate(delegate, warnings, bySeverity, batchStartTime, batchEndTime)
	}
}

func (s *BatchingService) sendSummaryToDelegate(
	delegate Service,
	allWarnings []*warning.Warning,
	bySeverity map[string][]*warning.Warning,
	startTime, endTime time.Time,
) {
	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("warning summary (%s to %s)\n\n",
		startTime.Format(time.RFC3339), endTime.Format(time.RFC3339)))

	for i := len(severityOrder) - 1; i >= 0; i-- {
		severity := severityOrder[i]
		forSeverity := bySeverity[severity]
		if len(forSeverity) == 0 {
			continue
		}

		summary.WriteString(fmt.Sprintf("%s issues (%d):\n", severity, len(forSeverity)))

		byCategory := make(map[string][]*warning.Warning)
		for _, w := range forSeverity {
			byCategory[w.Category] = append(byCategory[w.Category], w)
		}

		for category, categoryWarnings := range byCategory {
			if len(categoryWarnings) == 1 {
				summary.WriteString(fmt.Sprintf("  - %s: %s\n", category, categoryWarnings[0].Message))
			} else {
				summary.WriteString(fmt.Sprintf("  - %s: %d occurrences\n", category, len(categoryWarnings)))
				summary.WriteString(fmt.Sprintf("    example: %s\n", categoryWarnings[0].Message))
			}
		}
		summary.WriteString("\n")
	}
	summary.WriteString(fmt.Sprintf("total warnings: %d\n", len(allWarnings)))

	summaryWarning := &warning.Warning{
		ID:        uuid.New().String(),
		Category:  "BATCH_SUMMARY",
		Severity:  highestSeverity(bySeverity),
		Message:   summary.String(),
		Timestamp: time.Now(),
		Source:    "BatchingService",
	}

	delegate.NotifyWarning(summaryWarning)
}

func highestSeverity(bySeverity map[string][]*warning.Warning) string {
	for i := len(severityOrder) - 1; i >= 0; i-- {
		if len(bySeverity[severityOrder[i]]) > 0 {
			return severityOrder[i]
		}
	}
	return warning.SeverityInfo
}
