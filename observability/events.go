package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"otcswap/core/events"
)

type eventMetrics struct {
	events     *prometheus.CounterVec
	fillInput  *prometheus.CounterVec
	feeVolume  *prometheus.CounterVec
	fillsTotal prometheus.Counter
	dropped    *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking OTC lifecycle events. It
// implements events.Emitter so it can subscribe to the engine directly.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "events",
				Name:      "total",
				Help:      "Count of lifecycle events segmented by type.",
			}, []string{"type"}),
			fillInput: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "fills",
				Name:      "input_amount_total",
				Help:      "Cumulative input asset released to takers, by asset.",
			}, []string{"asset"}),
			feeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "fills",
				Name:      "fee_amount_total",
				Help:      "Cumulative protocol fees collected, by output asset.",
			}, []string{"asset"}),
			fillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "fills",
				Name:      "total",
				Help:      "Number of settled fills.",
			}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events a downstream sink discarded because its queue was full.",
			}, []string{"sink", "type"}),
		}
		prometheus.MustRegister(
			eventRegistry.events,
			eventRegistry.fillInput,
			eventRegistry.feeVolume,
			eventRegistry.fillsTotal,
			eventRegistry.dropped,
		)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	rec := events.Record(evt)
	if rec == nil || rec.Type != "otc.offer.taken" {
		return
	}
	m.fillsTotal.Inc()
	if v, err := strconv.ParseUint(rec.Attr("inputAmount"), 10, 64); err == nil {
		m.fillInput.WithLabelValues(rec.Attr("inputAsset")).Add(float64(v))
	}
	if v, err := strconv.ParseUint(rec.Attr("feeAmount"), 10, 64); err == nil {
		m.feeVolume.WithLabelValues(rec.Attr("outputAsset")).Add(float64(v))
	}
}

// RecordDropped counts an event a sink could not accept.
func (m *eventMetrics) RecordDropped(sink, eventType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(sink, eventType).Inc()
}
