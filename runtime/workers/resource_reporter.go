package workers

import (
	"chat-sync/contract"
	"chat-sync/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Report is one sample of the client process and its sync counters.
type Report struct {
	CPUPercent    float64
	MemoryPercent float32
	RSSMb         uint64
	Sync          observability.Stats
}

// ResourceReporterWorker samples the current process every interval and
// logs it together with the sync counters.
type ResourceReporterWorker struct {
	log      *slog.Logger
	metrics  *observability.SyncMetrics
	interval time.Duration
	pid      int32
	onReport func(Report)
}

func NewResourceReporterWorker(log *slog.Logger, metrics *observability.SyncMetrics, interval time.Duration) *ResourceReporterWorker {
	return &ResourceReporterWorker{
		log:      log,
		metrics:  metrics,
		interval: interval,
		pid:      int32(os.Getpid()),
	}
}

// OnReport is called after each sample, from the worker goroutine.
func (w *ResourceReporterWorker) OnReport(fn func(Report)) *ResourceReporterWorker {
	w.onReport = fn
	return w
}

func (w *ResourceReporterWorker) GetName() contract.WorkerName {
	return "resource_reporter"
}

func (w *ResourceReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping resource reporter")
			return nil
		case <-ticker.C:
			report, err := w.sample()
			if err != nil {
				w.log.Error("Error while sampling process", "pid", w.pid, "error", err)
				continue
			}
			w.log.Info("Resources",
				"cpu_percent", report.CPUPercent,
				"memory_percent", report.MemoryPercent,
				"rss_mb", report.RSSMb,
				"active_subscriptions", report.Sync.ActiveSubscriptions,
				"snapshots_delivered", report.Sync.SnapshotsDelivered,
				"writes_failed", report.Sync.WritesFailed,
				"rollbacks", report.Sync.Rollbacks,
				"duplicate_conversations", report.Sync.DuplicateConversations,
				"worker_restarts", report.Sync.WorkerRestarts)
			if w.onReport != nil {
				w.onReport(report)
			}
		}
	}
}

func (w *ResourceReporterWorker) sample() (Report, error) {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return Report{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return Report{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return Report{}, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return Report{}, err
	}
	return Report{
		CPUPercent:    cpu,
		MemoryPercent: ram,
		RSSMb:         info.RSS / 1024 / 1024,
		Sync:          w.metrics.GetLatest(),
	}, nil
}
