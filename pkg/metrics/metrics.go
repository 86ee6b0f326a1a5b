package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Metrics collects the statistics of one backup run.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesUpToDate(n int64)
	AddFilesExcluded(n int64)
	AddFilesFailed(n int64)
	AddFilesRetried(n int64)
	AddFilesDeleted(n int64)
	AddDirsDeleted(n int64)
	AddDirsExcluded(n int64)
	AddSnapshotsPruned(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// RunMetrics holds the atomic counters of a run. The zero value is ready to use.
type RunMetrics struct {
	FilesCopied     atomic.Int64
	FilesUpToDate   atomic.Int64
	FilesExcluded   atomic.Int64
	FilesFailed     atomic.Int64
	FilesRetried    atomic.Int64
	FilesDeleted    atomic.Int64
	DirsDeleted     atomic.Int64
	DirsExcluded    atomic.Int64
	SnapshotsPruned atomic.Int64
	BytesWritten    atomic.Int64

	mu        sync.Mutex
	stopChan  chan struct{}
	startTime time.Time
}

func (m *RunMetrics) AddFilesCopied(n int64)     { m.FilesCopied.Add(n) }
func (m *RunMetrics) AddFilesUpToDate(n int64)   { m.FilesUpToDate.Add(n) }
func (m *RunMetrics) AddFilesExcluded(n int64)   { m.FilesExcluded.Add(n) }
func (m *RunMetrics) AddFilesFailed(n int64)     { m.FilesFailed.Add(n) }
func (m *RunMetrics) AddFilesRetried(n int64)    { m.FilesRetried.Add(n) }
func (m *RunMetrics) AddFilesDeleted(n int64)    { m.FilesDeleted.Add(n) }
func (m *RunMetrics) AddDirsDeleted(n int64)     { m.DirsDeleted.Add(n) }
func (m *RunMetrics) AddDirsExcluded(n int64)    { m.DirsExcluded.Add(n) }
func (m *RunMetrics) AddSnapshotsPruned(n int64) { m.SnapshotsPruned.Add(n) }
func (m *RunMetrics) AddBytesWritten(n int64)    { m.BytesWritten.Add(n) }

// StartProgress logs a summary line every interval until StopProgress is called.
// Calling it while progress is already running restarts the ticker.
func (m *RunMetrics) StartProgress(msg string, interval time.Duration) {
	m.StopProgress()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
	stop := make(chan struct{})
	m.stopChan = stop
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

// StopProgress stops the progress ticker. It is safe to call more than once.
func (m *RunMetrics) StopProgress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary prints the current counters.
func (m *RunMetrics) LogSummary(msg string) {
	args := []interface{}{
		"copied", m.FilesCopied.Load(),
		"upToDate", m.FilesUpToDate.Load(),
		"excluded", m.FilesExcluded.Load(),
		"failed", m.FilesFailed.Load(),
		"retried", m.FilesRetried.Load(),
		"deletedFiles", m.FilesDeleted.Load(),
		"deletedDirs", m.DirsDeleted.Load(),
		"excludedDirs", m.DirsExcluded.Load(),
		"prunedSnapshots", m.SnapshotsPruned.Load(),
		"written", util.ByteCountIEC(m.BytesWritten.Load()),
	}
	m.mu.Lock()
	start := m.startTime
	m.mu.Unlock()
	if !start.IsZero() {
		args = append(args, "elapsed", time.Since(start).Round(time.Second).String())
	}
	plog.Info(msg, args...)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCopied(n int64)                           {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)                         {}
func (m *NoopMetrics) AddFilesExcluded(n int64)                         {}
func (m *NoopMetrics) AddFilesFailed(n int64)                           {}
func (m *NoopMetrics) AddFilesRetried(n int64)                          {}
func (m *NoopMetrics) AddFilesDeleted(n int64)                          {}
func (m *NoopMetrics) AddDirsDeleted(n int64)                           {}
func (m *NoopMetrics) AddDirsExcluded(n int64)                          {}
func (m *NoopMetrics) AddSnapshotsPruned(n int64)                       {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
