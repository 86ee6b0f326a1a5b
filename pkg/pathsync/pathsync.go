// Package pathsync mirrors source directory trees into a target tree.
//
// The Walker performs one depth-first pass per source, handing every file to the
// copy decision engine and parking failures in an ErrorQueue. The Retrier then
// re-attempts the transient failures for a bounded time, and in sync mode the
// Pruner removes target entries whose source counterpart is gone.
//
// Everything in this package runs on the caller's goroutine. Progress and
// diagnostics are reported through an injected plog.Sink as category/detail pairs.
package pathsync

import (
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/metrics"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// Event categories passed to the sink.
const (
	EventCopied          = "COPY"
	EventDirExcluded     = "SKIP_DIR"
	EventDeferred        = "DEFERRED"
	EventDirUnreadable   = "DIR_UNREADABLE"
	EventExcessiveErrors = "EXCESSIVE_ERRORS"
	EventRecovered       = "RETRY_OK"
	EventUnresolved      = "UNRESOLVED"
	EventDeleted         = "DELETE"
	EventDeleteFailed    = "DELETE_FAILED"
)

// DefaultSink logs failures at WARN and everything else at DEBUG.
var DefaultSink = plog.NewSink(EventDirUnreadable, EventExcessiveErrors, EventUnresolved, EventDeleteFailed)

// ErrExcessiveErrors aborts a run when a single directory yields too many failures.
var ErrExcessiveErrors = errors.Base("excessive errors")

// errDirUnreadable marks a directory that was recorded as unreadable.
var errDirUnreadable = errors.Base("directory could not be read")

type options struct {
	sink    plog.Sink
	metrics metrics.Metrics
	now     func() time.Time
}

// Option configures a Walker, Retrier or Pruner.
type Option func(*options)

// WithSink sets the event sink. The default is DefaultSink.
func WithSink(s plog.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithMetrics sets the counters updated by the component.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for failure timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		sink:    DefaultSink,
		metrics: &metrics.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = plog.DiscardSink
	}
	return o
}
