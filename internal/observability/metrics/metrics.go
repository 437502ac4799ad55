// Package metrics aggregates in-memory counters for the overlay runtime and
// renders them in Prometheus text format. Everything is process-local; there
// is no push path.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates counters for HTTP traffic, store dispatches, the alert
// admission pipeline, and the mirror/archive side channels. A RWMutex guards
// the label maps while gauges use atomics.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	dispatchCount   map[string]uint64
	dispatchFailed  map[string]uint64

	reentrantRejected atomic.Uint64
	queueDrops        atomic.Uint64
	dedupeRejected    atomic.Uint64
	promotions        atomic.Uint64
	dismissals        atomic.Uint64
	mirrorWrites      atomic.Uint64
	mirrorFailures    atomic.Uint64
	archiveFailures   atomic.Uint64

	overlayClients atomic.Int64
	botConnected   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can record immediately.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		dispatchCount:   make(map[string]uint64),
		dispatchFailed:  make(map[string]uint64),
	}
}

// Default returns the shared Recorder used by packages that do not wire a
// custom instance.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by method,
// path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   path,
		status: strconv.Itoa(status),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
}

// ObserveDispatch counts one committed store dispatch by action type.
func (r *Recorder) ObserveDispatch(actionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchCount[actionType]++
}

// ObserveDispatchFailure counts a dispatch that was rolled back because a
// reducer faulted.
func (r *Recorder) ObserveDispatchFailure(actionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchFailed[actionType]++
}

// ReentrantRejected counts a dispatch dropped by the reentrancy guard.
func (r *Recorder) ReentrantRejected() { r.reentrantRejected.Add(1) }

// AlertQueueDropped counts an alert evicted by drop-oldest backpressure.
func (r *Recorder) AlertQueueDropped() { r.queueDrops.Add(1) }

// AlertDeduped counts an enqueue rejected as a redelivered duplicate.
func (r *Recorder) AlertDeduped() { r.dedupeRejected.Add(1) }

// AlertPromoted counts a pending alert promoted to the visible set.
func (r *Recorder) AlertPromoted() { r.promotions.Add(1) }

// AlertDismissed counts an alert leaving the visible set.
func (r *Recorder) AlertDismissed() { r.dismissals.Add(1) }

// MirrorWrite counts an attempted best-effort variable mirror write.
func (r *Recorder) MirrorWrite() { r.mirrorWrites.Add(1) }

// MirrorFailure counts a mirror write that errored.
func (r *Recorder) MirrorFailure() { r.mirrorFailures.Add(1) }

// ArchiveFailure counts a failed alert archive insert.
func (r *Recorder) ArchiveFailure() { r.archiveFailures.Add(1) }

// ClientConnected tracks an overlay page attaching to the hub.
func (r *Recorder) ClientConnected() { r.overlayClients.Add(1) }

// ClientDisconnected tracks an overlay page detaching from the hub.
func (r *Recorder) ClientDisconnected() { r.overlayClients.Add(-1) }

// OverlayClients reports the current hub client gauge.
func (r *Recorder) OverlayClients() int64 { return r.overlayClients.Load() }

// SetBotConnected flips the bot link gauge.
func (r *Recorder) SetBotConnected(connected bool) {
	if connected {
		r.botConnected.Store(1)
	} else {
		r.botConnected.Store(0)
	}
}

// DispatchCount returns the committed dispatch total for one action type.
// Intended for tests.
func (r *Recorder) DispatchCount(actionType string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatchCount[actionType]
}

// Promotions reports the promotion counter. Intended for tests.
func (r *Recorder) Promotions() uint64 { return r.promotions.Load() }

// QueueDrops reports the backpressure counter. Intended for tests.
func (r *Recorder) QueueDrops() uint64 { return r.queueDrops.Load() }

// Reset clears every counter and gauge. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.dispatchCount = make(map[string]uint64)
	r.dispatchFailed = make(map[string]uint64)
	r.mu.Unlock()
	r.reentrantRejected.Store(0)
	r.queueDrops.Store(0)
	r.dedupeRejected.Store(0)
	r.promotions.Store(0)
	r.dismissals.Store(0)
	r.mirrorWrites.Store(0)
	r.mirrorFailures.Store(0)
	r.archiveFailures.Store(0)
	r.overlayClients.Store(0)
	r.botConnected.Store(0)
}

// Handler exposes the recorder in Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics with sorted label sets for stable scrapes.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	dispatchTypes := sortedKeys(r.dispatchCount)
	failedTypes := sortedKeys(r.dispatchFailed)

	fmt.Fprintln(w, "# HELP streamglass_http_requests_total Total number of HTTP requests processed")
	fmt.Fprintln(w, "# TYPE streamglass_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "streamglass_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP streamglass_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streamglass_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "streamglass_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP streamglass_dispatches_total Store dispatches committed by action type")
	fmt.Fprintln(w, "# TYPE streamglass_dispatches_total counter")
	for _, t := range dispatchTypes {
		fmt.Fprintf(w, "streamglass_dispatches_total{action=%q} %d\n", t, r.dispatchCount[t])
	}

	fmt.Fprintln(w, "# HELP streamglass_dispatch_failures_total Dispatches rolled back after a reducer fault")
	fmt.Fprintln(w, "# TYPE streamglass_dispatch_failures_total counter")
	for _, t := range failedTypes {
		fmt.Fprintf(w, "streamglass_dispatch_failures_total{action=%q} %d\n", t, r.dispatchFailed[t])
	}

	fmt.Fprintln(w, "# HELP streamglass_dispatch_reentrant_rejected_total Dispatches dropped by the reentrancy guard")
	fmt.Fprintln(w, "# TYPE streamglass_dispatch_reentrant_rejected_total counter")
	fmt.Fprintf(w, "streamglass_dispatch_reentrant_rejected_total %d\n", r.reentrantRejected.Load())

	fmt.Fprintln(w, "# HELP streamglass_alert_queue_drops_total Pending alerts evicted by drop-oldest backpressure")
	fmt.Fprintln(w, "# TYPE streamglass_alert_queue_drops_total counter")
	fmt.Fprintf(w, "streamglass_alert_queue_drops_total %d\n", r.queueDrops.Load())

	fmt.Fprintln(w, "# HELP streamglass_alert_dedupe_rejected_total Enqueues rejected as redelivered duplicates")
	fmt.Fprintln(w, "# TYPE streamglass_alert_dedupe_rejected_total counter")
	fmt.Fprintf(w, "streamglass_alert_dedupe_rejected_total %d\n", r.dedupeRejected.Load())

	fmt.Fprintln(w, "# HELP streamglass_alert_promotions_total Alerts promoted from queue to the visible set")
	fmt.Fprintln(w, "# TYPE streamglass_alert_promotions_total counter")
	fmt.Fprintf(w, "streamglass_alert_promotions_total %d\n", r.promotions.Load())

	fmt.Fprintln(w, "# HELP streamglass_alert_dismissals_total Alerts removed from the visible set")
	fmt.Fprintln(w, "# TYPE streamglass_alert_dismissals_total counter")
	fmt.Fprintf(w, "streamglass_alert_dismissals_total %d\n", r.dismissals.Load())

	fmt.Fprintln(w, "# HELP streamglass_mirror_writes_total Best-effort variable mirror writes attempted")
	fmt.Fprintln(w, "# TYPE streamglass_mirror_writes_total counter")
	fmt.Fprintf(w, "streamglass_mirror_writes_total %d\n", r.mirrorWrites.Load())

	fmt.Fprintln(w, "# HELP streamglass_mirror_failures_total Best-effort variable mirror writes that errored")
	fmt.Fprintln(w, "# TYPE streamglass_mirror_failures_total counter")
	fmt.Fprintf(w, "streamglass_mirror_failures_total %d\n", r.mirrorFailures.Load())

	fmt.Fprintln(w, "# HELP streamglass_archive_failures_total Alert archive inserts that errored")
	fmt.Fprintln(w, "# TYPE streamglass_archive_failures_total counter")
	fmt.Fprintf(w, "streamglass_archive_failures_total %d\n", r.archiveFailures.Load())

	fmt.Fprintln(w, "# HELP streamglass_overlay_clients Connected overlay capture pages")
	fmt.Fprintln(w, "# TYPE streamglass_overlay_clients gauge")
	fmt.Fprintf(w, "streamglass_overlay_clients %d\n", r.overlayClients.Load())

	fmt.Fprintln(w, "# HELP streamglass_bot_connected Whether the automation bot socket is established")
	fmt.Fprintln(w, "# TYPE streamglass_bot_connected gauge")
	fmt.Fprintf(w, "streamglass_bot_connected %d\n", r.botConnected.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
