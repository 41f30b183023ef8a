package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
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

type relayLabel struct {
	action string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP requests,
// authentication events, relay submissions, and persisted results. It
// coordinates concurrent writers via a RWMutex while exposing a thread-safe
// gauge for in-flight relay tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authEvents      map[string]uint64
	relayEvents     map[relayLabel]uint64
	resultsPersist  map[string]uint64
	inflightRelays  atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authEvents:      make(map[string]uint64),
		relayEvents:     make(map[relayLabel]uint64),
		resultsPersist:  make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthEvent records an authentication event keyed by outcome (e.g.
// "signup", "login", "login_rejected", "token_rejected").
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// RelayStarted records the start of a relay submission for the given action
// and increments the in-flight gauge.
func (r *Recorder) RelayStarted(action string) {
	r.recordRelayEvent(action, "start")
	r.inflightRelays.Add(1)
}

// RelayCompleted records a relayed submission that the processing service
// answered with 200 and decrements the in-flight gauge.
func (r *Recorder) RelayCompleted(action string) {
	r.recordRelayEvent(action, "complete")
	r.decrementGauge(&r.inflightRelays)
}

// RelayFailed records a relay submission that failed upstream or in transit
// and decrements the in-flight gauge.
func (r *Recorder) RelayFailed(action string) {
	r.recordRelayEvent(action, "fail")
	r.decrementGauge(&r.inflightRelays)
}

func (r *Recorder) recordRelayEvent(action, status string) {
	label := relayLabel{
		action: normalizeName(action),
		status: normalizeName(status),
	}
	r.mu.Lock()
	r.relayEvents[label]++
	r.mu.Unlock()
}

// ObserveResultPersisted records a stored result record keyed by the action
// that produced it.
func (r *Recorder) ObserveResultPersisted(action string) {
	normalized := normalizeName(action)
	r.mu.Lock()
	r.resultsPersist[normalized]++
	r.mu.Unlock()
}

// InflightRelays exposes the current gauge of submissions awaiting the
// processing service.
func (r *Recorder) InflightRelays() int64 {
	return r.inflightRelays.Load()
}

// AuthEventCounts returns a copy of the auth event counters for testing and
// reporting purposes.
func (r *Recorder) AuthEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.authEvents))
	for k, v := range r.authEvents {
		counts[k] = v
	}
	return counts
}

// RelayEventCounts returns copies of relay event counters keyed by
// "action/status" alongside the current in-flight gauge value.
func (r *Recorder) RelayEventCounts() (events map[string]uint64, inflight int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[string]uint64, len(r.relayEvents))
	for label, count := range r.relayEvents {
		events[label.action+"/"+label.status] = count
	}
	return events, r.inflightRelays.Load()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.relayEvents = make(map[relayLabel]uint64)
	r.resultsPersist = make(map[string]uint64)
	r.inflightRelays.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := r.sortedAuthEvents()
	relayLabels := r.sortedRelayLabels()
	persistActions := r.sortedPersistActions()

	fmt.Fprintln(w, "# HELP seolens_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE seolens_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "seolens_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP seolens_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE seolens_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "seolens_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP seolens_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE seolens_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "seolens_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP seolens_auth_events_total Authentication events by outcome")
	fmt.Fprintln(w, "# TYPE seolens_auth_events_total counter")
	for _, event := range authEvents {
		count := r.authEvents[event]
		fmt.Fprintf(w, "seolens_auth_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP seolens_relay_submissions_total Relay submissions by action and status")
	fmt.Fprintln(w, "# TYPE seolens_relay_submissions_total counter")
	for _, label := range relayLabels {
		count := r.relayEvents[label]
		fmt.Fprintf(w, "seolens_relay_submissions_total{action=\"%s\",status=\"%s\"} %d\n", label.action, label.status, count)
	}

	fmt.Fprintln(w, "# HELP seolens_relay_inflight Current number of submissions awaiting the processing service")
	fmt.Fprintln(w, "# TYPE seolens_relay_inflight gauge")
	fmt.Fprintf(w, "seolens_relay_inflight %d\n", r.inflightRelays.Load())

	fmt.Fprintln(w, "# HELP seolens_results_persisted_total Result records stored by action")
	fmt.Fprintln(w, "# TYPE seolens_results_persisted_total counter")
	for _, action := range persistActions {
		count := r.resultsPersist[action]
		fmt.Fprintf(w, "seolens_results_persisted_total{action=\"%s\"} %d\n", action, count)
	}
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

func (r *Recorder) sortedAuthEvents() []string {
	events := make([]string, 0, len(r.authEvents))
	for event := range r.authEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func (r *Recorder) sortedRelayLabels() []relayLabel {
	labels := make([]relayLabel, 0, len(r.relayEvents))
	for label := range r.relayEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].action != labels[j].action {
			return labels[i].action < labels[j].action
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedPersistActions() []string {
	actions := make([]string, 0, len(r.resultsPersist))
	for action := range r.resultsPersist {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent records an auth event on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// RelayStarted records a relay start on the default recorder.
func RelayStarted(action string) {
	defaultRecorder.RelayStarted(action)
}

// RelayCompleted records a relay completion on the default recorder.
func RelayCompleted(action string) {
	defaultRecorder.RelayCompleted(action)
}

// RelayFailed records a relay failure on the default recorder.
func RelayFailed(action string) {
	defaultRecorder.RelayFailed(action)
}

// ObserveResultPersisted records a stored result record on the default recorder.
func ObserveResultPersisted(action string) {
	defaultRecorder.ObserveResultPersisted(action)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
