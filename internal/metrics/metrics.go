// Package metrics keeps in-process counters for editor-service traffic.
// The registry is never served; it is rendered on demand for :DprintStatus.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "dprint_nvim"

// Outcome labels for Requests.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

type Metrics struct {
	registry *prometheus.Registry

	Requests       *prometheus.CounterVec
	Launches       prometheus.Counter
	FormatDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Editor service requests by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		Launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_launches_total",
			Help:      "Editor service processes launched.",
		}),
		FormatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "format_duration_seconds",
			Help:      "Time spent waiting for formatted text.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	m.registry.MustRegister(m.Requests, m.Launches, m.FormatDuration)
	return m
}

// ObserveRequest counts one request of kind that ended with outcome.
func (m *Metrics) ObserveRequest(kind, outcome string) {
	m.Requests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveFormat(d time.Duration) {
	m.FormatDuration.Observe(d.Seconds())
}

// Summary renders the current values as sorted human-readable lines.
func (m *Metrics) Summary() ([]string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, family := range families {
		name := strings.TrimPrefix(family.GetName(), namespace+"_")
		for _, metric := range family.GetMetric() {
			lines = append(lines, name+labelSuffix(metric)+" "+valueOf(family.GetType(), metric))
		}
	}
	sort.Strings(lines)
	return lines, nil
}

func labelSuffix(metric *dto.Metric) string {
	pairs := metric.GetLabel()
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func valueOf(typ dto.MetricType, metric *dto.Metric) string {
	switch typ {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", metric.GetCounter().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := metric.GetHistogram()
		if h.GetSampleCount() == 0 {
			return "count=0"
		}
		mean := time.Duration(h.GetSampleSum() / float64(h.GetSampleCount()) * float64(time.Second))
		return fmt.Sprintf("count=%d mean=%s", h.GetSampleCount(), mean.Round(time.Millisecond))
	default:
		return "?"
	}
}
