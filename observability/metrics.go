package observability

import (
	"sync/atomic"
)

// SyncMetrics counts what happens on the synchronization path.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	SnapshotsDelivered     uint64
	WritesFailed           uint64
	Rollbacks              uint64
	DuplicateConversations uint64
	PairConflictsResolved  uint64
	WorkerRestarts         uint64
	LeakedViews            uint64

	subscriptions func() int
}

// Stats is a point-in-time copy of the counters, for logs and tables.
type Stats struct {
	SnapshotsDelivered     uint64
	WritesFailed           uint64
	Rollbacks              uint64
	DuplicateConversations uint64
	PairConflictsResolved  uint64
	WorkerRestarts         uint64
	LeakedViews            uint64
	ActiveSubscriptions    int
}

func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{}
}

// WithSubscriptionGauge reads the number of live listeners from gauge.
func (m *SyncMetrics) WithSubscriptionGauge(gauge func() int) *SyncMetrics {
	m.subscriptions = gauge
	return m
}

func (m *SyncMetrics) IncrSnapshotsDelivered() {
	if m != nil {
		atomic.AddUint64(&m.SnapshotsDelivered, 1)
	}
}

func (m *SyncMetrics) IncrWritesFailed() {
	if m != nil {
		atomic.AddUint64(&m.WritesFailed, 1)
	}
}

func (m *SyncMetrics) IncrRollbacks() {
	if m != nil {
		atomic.AddUint64(&m.Rollbacks, 1)
	}
}

func (m *SyncMetrics) IncrDuplicateConversations() {
	if m != nil {
		atomic.AddUint64(&m.DuplicateConversations, 1)
	}
}

func (m *SyncMetrics) IncrPairConflictsResolved() {
	if m != nil {
		atomic.AddUint64(&m.PairConflictsResolved, 1)
	}
}

func (m *SyncMetrics) IncrWorkerRestarts() {
	if m != nil {
		atomic.AddUint64(&m.WorkerRestarts, 1)
	}
}

func (m *SyncMetrics) IncrLeakedViews() {
	if m != nil {
		atomic.AddUint64(&m.LeakedViews, 1)
	}
}

func (m *SyncMetrics) GetLatest() Stats {
	if m == nil {
		return Stats{}
	}
	stats := Stats{
		SnapshotsDelivered:     atomic.LoadUint64(&m.SnapshotsDelivered),
		WritesFailed:           atomic.LoadUint64(&m.WritesFailed),
		Rollbacks:              atomic.LoadUint64(&m.Rollbacks),
		DuplicateConversations: atomic.LoadUint64(&m.DuplicateConversations),
		PairConflictsResolved:  atomic.LoadUint64(&m.PairConflictsResolved),
		WorkerRestarts:         atomic.LoadUint64(&m.WorkerRestarts),
		LeakedViews:            atomic.LoadUint64(&m.LeakedViews),
	}
	if m.subscriptions != nil {
		stats.ActiveSubscriptions = m.subscriptions()
	}
	return stats
}
