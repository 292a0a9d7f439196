package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics records publisher and dispatcher outcomes.
type RelayMetrics struct {
	published       *prometheus.CounterVec
	publishRetries  *prometheus.CounterVec
	deadLetters     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	offsetCommits   *prometheus.CounterVec
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_published_total",
		Help: "Outbox events successfully published to the broker.",
	}, []string{"topic"})
	publishRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_publish_retries_total",
		Help: "Transient publish failures that will be retried.",
	}, []string{"topic"})
	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_dead_letters_total",
		Help: "Messages routed to the dead letter store.",
	}, []string{"topic", "source"})
	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_handler_duration_seconds",
		Help:    "Duration of consumer handler invocations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic", "consumer_group"})
	offsetCommits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_offset_commits_total",
		Help: "Consumer offset commits after successful handling.",
	}, []string{"topic", "consumer_group"})
	reg.MustRegister(published, publishRetries, deadLetters, handlerDuration, offsetCommits)
	return &RelayMetrics{
		published:       published,
		publishRetries:  publishRetries,
		deadLetters:     deadLetters,
		handlerDuration: handlerDuration,
		offsetCommits:   offsetCommits,
	}
}

// IncPublished increments the published counter for the topic.
func (m *RelayMetrics) IncPublished(topic string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic)).Inc()
}

// IncPublishRetry increments the retry counter for the topic.
func (m *RelayMetrics) IncPublishRetry(topic string) {
	if m == nil || m.publishRetries == nil {
		return
	}
	m.publishRetries.WithLabelValues(normalizeLabel(topic)).Inc()
}

// IncDeadLetter increments the dead letter counter for the topic/source pair.
func (m *RelayMetrics) IncDeadLetter(topic, source string) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(topic), normalizeLabel(source)).Inc()
}

// ObserveHandlerDuration records how long a handler invocation took.
func (m *RelayMetrics) ObserveHandlerDuration(topic, group string, duration time.Duration) {
	if m == nil || m.handlerDuration == nil {
		return
	}
	m.handlerDuration.WithLabelValues(normalizeLabel(topic), normalizeLabel(group)).Observe(duration.Seconds())
}

// IncOffsetCommit increments the offset commit counter.
func (m *RelayMetrics) IncOffsetCommit(topic, group string) {
	if m == nil || m.offsetCommits == nil {
		return
	}
	m.offsetCommits.WithLabelValues(normalizeLabel(topic), normalizeLabel(group)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
