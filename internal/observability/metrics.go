package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for the resolution engine. A nil *Metrics is
// valid and records nothing, so metrics stay optional in tests.
type Metrics struct {
	messagesProcessed prometheus.Counter
	commandsResolved  prometheus.Counter
	drops             *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	pickerOutcomes    *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
}

// NewMetrics creates and registers the engine's metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crewbot_messages_processed_total",
			Help: "Messages that entered the prefix-command resolver.",
		}),
		commandsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crewbot_commands_resolved_total",
			Help: "Messages that resolved to a command reply.",
		}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewbot_resolver_drops_total",
			Help: "Messages dropped by the resolver, by pipeline stage.",
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewbot_cache_lookups_total",
			Help: "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		pickerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crewbot_picker_outcomes_total",
			Help: "Version picker sessions by terminal outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crewbot_cache_refresh_duration_seconds",
			Help:    "Duration of full cache refresh passes.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.messagesProcessed,
			m.commandsResolved,
			m.drops,
			m.cacheLookups,
			m.pickerOutcomes,
			m.refreshDuration,
		)
	}
	return m
}

// MessageProcessed records a message entering the resolver.
func (m *Metrics) MessageProcessed() {
	if m == nil {
		return
	}
	m.messagesProcessed.Inc()
}

// CommandResolved records a message resolving to a reply.
func (m *Metrics) CommandResolved() {
	if m == nil {
		return
	}
	m.commandsResolved.Inc()
}

// Drop records a pipeline drop at the named stage.
func (m *Metrics) Drop(stage string) {
	if m == nil {
		return
	}
	m.drops.WithLabelValues(stage).Inc()
}

// CacheLookup records a cache hit or miss for a namespace.
func (m *Metrics) CacheLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// PickerOutcome records a picker session's terminal state.
func (m *Metrics) PickerOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pickerOutcomes.WithLabelValues(outcome).Inc()
}

// RefreshObserved records the duration of a full cache refresh pass.
func (m *Metrics) RefreshObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
}
