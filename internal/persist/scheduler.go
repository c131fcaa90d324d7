package persist

import (
	"context"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/VoolFI71/go-rdb/internal/storage"
)

// DefaultInterval is the period between background snapshots.
const DefaultInterval = 300 * time.Second

var (
	snapshotsWritten = metrics.NewCounter(`rdb_snapshots_total{result="ok"}`)
	snapshotsFailed  = metrics.NewCounter(`rdb_snapshots_total{result="error"}`)
	snapshotDuration = metrics.NewSummary(`rdb_snapshot_duration_seconds`)
	snapshotSkipped  = metrics.NewCounter(`rdb_snapshot_skipped_keys_total`)
)

// Scheduler writes the store to a dump file on demand and periodically.
type Scheduler struct {
	st       *storage.Storage
	path     string
	interval time.Duration
	log      *zap.SugaredLogger

	// mu serializes dumps so SAVE and the timer never race on the temp file
	mu sync.Mutex
}

func NewScheduler(st *storage.Storage, path string, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{st: st, path: path, interval: interval, log: log}
}

func (s *Scheduler) Path() string {
	return s.path
}

// Save writes one snapshot.
func (s *Scheduler) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	n, skipped, err := DumpFile(s.st, s.path)
	if err != nil {
		snapshotsFailed.Inc()
		return err
	}
	snapshotsWritten.Inc()
	snapshotDuration.UpdateDuration(start)
	if skipped > 0 {
		snapshotSkipped.Add(skipped)
		s.log.Warnw("keys left out of snapshot", "path", s.path, "skipped", skipped)
	}
	s.log.Debugw("snapshot written", "path", s.path, "keys", n, "took", time.Since(start))
	return nil
}

// Run dumps the store every interval until ctx is done. Failures are logged
// and the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Save(); err != nil {
				s.log.Errorw("periodic snapshot failed", "path", s.path, "error", err)
				continue
			}
			s.log.Infow("database dumped", "path", s.path)
		}
	}
}
