package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncMetrics_Counts_Concurrently(t *testing.T) {
	req := require.New(t)
	metrics := NewSyncMetrics().WithSubscriptionGauge(func() int { return 3 })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncrSnapshotsDelivered()
			metrics.IncrRollbacks()
		}()
	}
	wg.Wait()
	metrics.IncrDuplicateConversations()

	stats := metrics.GetLatest()
	req.Equal(uint64(50), stats.SnapshotsDelivered)
	req.Equal(uint64(50), stats.Rollbacks)
	req.Equal(uint64(1), stats.DuplicateConversations)
	req.Equal(3, stats.ActiveSubscriptions)
}

func TestSyncMetrics_Nil_Is_Noop(t *testing.T) {
	var metrics *SyncMetrics
	metrics.IncrWritesFailed()
	require.Equal(t, Stats{}, metrics.GetLatest())
}
