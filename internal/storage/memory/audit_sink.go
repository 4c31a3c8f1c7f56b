package memory

import (
	"context"
	"sync"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/storage"
)

// AuditSink is an in-memory implementation of storage.AuditSink, used for
// tests and --use-memory runs. Records accumulate unboundedly; this sink
// is not intended for long-lived production processes.
type AuditSink struct {
	mu             sync.RWMutex
	checks         []*domain.ConsistencyCheckResult
	detectionRuns  []*domain.DetectionRun
	valueSnapshots []*domain.ValueSnapshot
}

// NewAuditSink creates a new in-memory audit sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// RecordConsistencyCheck appends a consistency audit outcome.
func (s *AuditSink) RecordConsistencyCheck(_ context.Context, r *domain.ConsistencyCheckResult) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resultCopy := *r
	s.checks = append(s.checks, &resultCopy)
	return nil
}

// RecordDetectionRun appends an overlay detection run summary.
func (s *AuditSink) RecordDetectionRun(_ context.Context, r *domain.DetectionRun) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runCopy := *r
	s.detectionRuns = append(s.detectionRuns, &runCopy)
	return nil
}

// RecordValueSnapshots appends served-value snapshots in bulk.
func (s *AuditSink) RecordValueSnapshots(_ context.Context, snaps []*domain.ValueSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		snapCopy := *snap
		s.valueSnapshots = append(s.valueSnapshots, &snapCopy)
	}
	return nil
}

// ConsistencyChecks returns copies of the recorded check results.
func (s *AuditSink) ConsistencyChecks() []*domain.ConsistencyCheckResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ConsistencyCheckResult, 0, len(s.checks))
	for _, r := range s.checks {
		resultCopy := *r
		result = append(result, &resultCopy)
	}
	return result
}

// DetectionRuns returns copies of the recorded run summaries.
func (s *AuditSink) DetectionRuns() []*domain.DetectionRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DetectionRun, 0, len(s.detectionRuns))
	for _, r := range s.detectionRuns {
		runCopy := *r
		result = append(result, &runCopy)
	}
	return result
}

// ValueSnapshots returns copies of the recorded snapshots.
func (s *AuditSink) ValueSnapshots() []*domain.ValueSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ValueSnapshot, 0, len(s.valueSnapshots))
	for _, snap := range s.valueSnapshots {
		snapCopy := *snap
		result = append(result, &snapCopy)
	}
	return result
}

// Verify interface compliance at compile time.
var _ storage.AuditSink = (*AuditSink)(nil)
