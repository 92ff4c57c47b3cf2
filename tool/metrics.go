package tool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/benbuzz790/llm-utilities/internal/util"
)

type toolMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newToolMetrics(reg prometheus.Registerer) *toolMetrics {
	if reg == nil {
		return nil
	}

	m := &toolMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bots_tool_calls_total",
				Help: "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bots_tool_call_duration_seconds",
				Help:    "Tool call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
	}
	m.calls = util.RegisterOrReuse(reg, m.calls)
	m.duration = util.RegisterOrReuse(reg, m.duration)
	return m
}

func (m *toolMetrics) observe(tool string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(dur.Seconds())
}
