package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aero_room_signal"

// RoomStats is implemented by the room registry.
type RoomStats interface {
	Stats() (rooms, peers int)
}

// NewRegistry builds a Prometheus registry exposing m as a single
// events_total counter with an `event` label, plus live room/peer gauges when
// rooms is non-nil.
func NewRegistry(m *Metrics, rooms RoomStats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newEventCollector(m),
	)

	if rooms != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rooms_active",
				Help:      "Rooms with at least one connected peer.",
			}, func() float64 {
				n, _ := rooms.Stats()
				return float64(n)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "peers_connected",
				Help:      "Peers currently joined to a room.",
			}, func() float64 {
				_, n := rooms.Stats()
				return float64(n)
			}),
		)
	}
	return reg
}

// PrometheusHandler serves the registry built by NewRegistry in Prometheus'
// exposition format.
func PrometheusHandler(m *Metrics, rooms RoomStats) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(NewRegistry(m, rooms), promhttp.HandlerOpts{})
}

type eventCollector struct {
	m    *Metrics
	desc *prometheus.Desc
}

func newEventCollector(m *Metrics) *eventCollector {
	return &eventCollector{
		m: m,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "events_total"),
			"Internal event counters.",
			[]string{"event"},
			nil,
		),
	}
}

func (c *eventCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *eventCollector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.m.Snapshot() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), name)
	}
}
