// Package metrics exposes the Prometheus instrumentation for mqloop's
// runtime (queue depth, dispatch latency, active watchers, kill
// escalations), grounded on the teacher's pkg/metrics/metrics.go — the
// same gauge/histogram declarations plus MustRegister-in-init and a
// Timer/ObserveDuration helper.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth reports MultiQueue.Size() sampled on push/pop, labeled by
	// the queue's name as assigned by its owner.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mqloop_queue_depth",
			Help: "Current size counter of a MultiQueue",
		},
		[]string{"queue"},
	)

	// DispatchDuration times a single handler invocation inside
	// MultiQueue.ProcessEvents.
	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mqloop_dispatch_duration_seconds",
			Help:    "Wall time spent inside a single event handler",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WatchersActive counts watchers that have been started and not yet
	// closed, labeled by kind (stream, signal, timer). It is incremented
	// by Start and decremented by Close; Process does not report under a
	// kind of its own.
	WatchersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mqloop_watchers_active",
			Help: "Number of watchers currently active, by kind",
		},
		[]string{"kind"},
	)

	// ProcessKillEscalationsTotal counts every time a supervised process
	// had to be escalated from SIGTERM to SIGKILL after KillTimeoutMS.
	ProcessKillEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mqloop_process_kill_escalations_total",
			Help: "Number of supervised processes escalated from SIGTERM to SIGKILL",
		},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(WatchersActive)
	prometheus.MustRegister(ProcessKillEscalationsTotal)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
