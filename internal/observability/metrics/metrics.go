package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const namespace = "walletchat"

var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// counterVec is a counter partitioned by label values.
type counterVec struct {
	name   string
	help   string
	labels []string
	values map[string]uint64
}

// histogramVec is a cumulative histogram partitioned by label values.
type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	series  map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

// Registry holds every metric exposed by the process.
type Registry struct {
	mu         sync.Mutex
	counters   []*counterVec
	histograms []*histogramVec
}

func (r *Registry) counter(name, help string, labels ...string) *counterVec {
	c := &counterVec{name: namespace + "_" + name, help: help, labels: labels, values: map[string]uint64{}}
	r.counters = append(r.counters, c)
	return c
}

func (r *Registry) histogram(name, help string, labels ...string) *histogramVec {
	h := &histogramVec{name: namespace + "_" + name, help: help, labels: labels, buckets: defaultBuckets, series: map[string]*histogram{}}
	r.histograms = append(r.histograms, h)
	return h
}

// labelKey joins label values with a separator that cannot appear after escaping.
func labelKey(values []string) string {
	return strings.Join(values, "\x00")
}

func (r *Registry) inc(c *counterVec, values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.values[labelKey(values)]++
}

func (r *Registry) observe(h *histogramVec, value float64, values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := labelKey(values)
	series := h.series[key]
	if series == nil {
		series = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = series
	}
	series.count++
	series.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			series.counts[idx]++
		}
	}
}

var (
	defaultRegistry = &Registry{}

	httpRequests = defaultRegistry.counter("http_requests_total",
		"Total number of HTTP requests processed.", "handler", "method", "code")
	httpErrors = defaultRegistry.counter("http_request_errors_total",
		"Total number of HTTP requests that resulted in a server error.", "handler", "method")
	httpLatency = defaultRegistry.histogram("http_request_duration_seconds",
		"HTTP request duration in seconds.", "handler", "method")

	messages = defaultRegistry.counter("messages_total",
		"Inbound chat messages by kind and outcome.", "kind", "outcome")
	messageLatency = defaultRegistry.histogram("message_duration_seconds",
		"Time spent producing a reply to an inbound message.", "kind")
	flowEvents = defaultRegistry.counter("flow_events_total",
		"Conversation flow lifecycle events.", "flow", "event")
	upstreamCalls = defaultRegistry.counter("upstream_calls_total",
		"Calls to external services by outcome.", "service", "outcome")
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultRegistry.inc(httpRequests, handler, method, strconv.Itoa(status))
	if status >= 500 {
		defaultRegistry.inc(httpErrors, handler, method)
	}
	defaultRegistry.observe(httpLatency, duration.Seconds(), handler, method)
}

// ObserveMessage records one handled chat message. kind is the command name
// or "text"; outcome is "ok" or "error".
func ObserveMessage(kind, outcome string, duration time.Duration) {
	defaultRegistry.inc(messages, kind, outcome)
	defaultRegistry.observe(messageLatency, duration.Seconds(), kind)
}

// ObserveFlow records a flow lifecycle event such as started, completed,
// canceled, expired or aborted.
func ObserveFlow(flow, event string) {
	defaultRegistry.inc(flowEvents, flow, event)
}

// ObserveUpstream records the outcome of a call to an external service.
func ObserveUpstream(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	defaultRegistry.inc(upstreamCalls, service, outcome)
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, defaultRegistry.render())
	})
}

func (r *Registry) render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)
	for _, c := range r.counters {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
		for _, key := range sortedKeys(c.values) {
			fmt.Fprintf(&b, "%s%s %d\n", c.name, formatLabels(c.labels, key, ""), c.values[key])
		}
	}
	for _, h := range r.histograms {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for _, key := range sortedKeys(h.series) {
			series := h.series[key]
			for idx, bound := range h.buckets {
				fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, key, formatFloat(bound)), series.counts[idx])
			}
			fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, key, "+Inf"), series.count)
			fmt.Fprintf(&b, "%s_sum%s %s\n", h.name, formatLabels(h.labels, key, ""), formatFloat(series.sum))
			fmt.Fprintf(&b, "%s_count%s %d\n", h.name, formatLabels(h.labels, key, ""), series.count)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatLabels(names []string, key, le string) string {
	values := strings.Split(key, "\x00")
	parts := make([]string, 0, len(names)+1)
	for idx, name := range names {
		value := ""
		if idx < len(values) {
			value = values[idx]
		}
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", name, escape(value)))
	}
	if le != "" {
		parts = append(parts, fmt.Sprintf("le=\"%s\"", le))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
