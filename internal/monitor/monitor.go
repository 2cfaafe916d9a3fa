// Package monitor runs periodic integrity sweeps: registered file
// artifacts are re-hashed on an interval and compared against their
// recorded digests, so silent on-disk drift is noticed without waiting for
// the next explicit verification.
package monitor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
)

// Config holds sweep configuration.
type Config struct {
	SweepInterval time.Duration
	FailThreshold int
}

// WatchedFile is the minimal data needed to re-check one registered file.
type WatchedFile struct {
	ID     uuid.UUID
	Path   string
	Digest digest.Digest
}

// FileLister returns the registered file artifacts to sweep.
type FileLister interface {
	ListWatchedFiles(ctx context.Context) ([]WatchedFile, error)
}

// DriftFunc is an optional callback invoked when a file crosses the drift
// threshold.
type DriftFunc func(ctx context.Context, path string)

// MetricsRecordFunc is an optional callback for recording sweep results.
type MetricsRecordFunc func(intact bool)

// Monitor re-hashes watched files on an interval. A file is reported as
// drifted only after FailThreshold consecutive mismatches, so a file
// caught mid-write does not raise a spurious alarm.
type Monitor struct {
	lister     FileLister
	failCounts map[uuid.UUID]int
	mu         sync.Mutex
	cfg        Config
	onDrift    DriftFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Monitor.
func New(lister FileLister, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 2
	}
	return &Monitor{
		lister:     lister,
		failCounts: make(map[uuid.UUID]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetDrift configures the drift callback.
func (m *Monitor) SetDrift(fn DriftFunc) { m.onDrift = fn }

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) { m.onMetrics = fn }

// Start runs the sweep loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SweepInterval-time.Second)
			m.SweepAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// SweepAll re-hashes all watched files with bounded concurrency.
func (m *Monitor) SweepAll(ctx context.Context) {
	files, err := m.lister.ListWatchedFiles(ctx)
	if err != nil {
		m.logger.Error("sweep: list watched files", zap.Error(err))
		return
	}

	sem := make(chan struct{}, 10)
	var wg sync.WaitGroup

	for _, f := range files {
		wg.Add(1)
		go func(f WatchedFile) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			intact := m.checkFile(f)

			if m.onMetrics != nil {
				m.onMetrics(intact)
			}

			m.mu.Lock()
			prevCount := m.failCounts[f.ID]
			if intact {
				m.failCounts[f.ID] = 0
			} else {
				m.failCounts[f.ID]++
			}
			count := m.failCounts[f.ID]
			m.mu.Unlock()

			switch {
			case intact && prevCount >= m.cfg.FailThreshold:
				m.logger.Info("sweep: file recovered", zap.String("path", f.Path))
			case !intact && count == m.cfg.FailThreshold:
				// Transition: intact to drifted, exactly at threshold.
				m.logger.Warn("sweep: file drifted",
					zap.String("path", f.Path),
					zap.Int("fail_count", count),
				)
				if m.onDrift != nil {
					m.onDrift(ctx, f.Path)
				}
			}
		}(f)
	}
	wg.Wait()
}

// checkFile reports whether the file on disk still matches its recorded
// digest. An unreadable file counts as not intact.
func (m *Monitor) checkFile(f WatchedFile) bool {
	current, _, err := hashing.HashFile(f.Path)
	if err != nil {
		return false
	}
	return current.Equal(f.Digest)
}
