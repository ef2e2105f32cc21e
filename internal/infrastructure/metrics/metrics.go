package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fxhub/internal/application/port"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	reg *prometheus.Registry

	RatesReceivedTotal      *prometheus.CounterVec
	RatesRejectedTotal      *prometheus.CounterVec
	RatesInvalidTotal       prometheus.Counter
	PublishedTotal          *prometheus.CounterVec
	PublishErrorsTotal      *prometheus.CounterVec
	DerivedTotal            *prometheus.CounterVec
	DerivedUnavailableTotal *prometheus.CounterVec
	ConnectorUpGauge        *prometheus.GaugeVec
}

// New registers every metric on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		RatesReceivedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_rates_received_total",
				Help: "Valid raw rates received per platform",
			},
			[]string{"platform"},
		),
		RatesRejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_rates_rejected_total",
				Help: "Raw rates rejected by the tolerance check",
			},
			[]string{"platform", "symbol"},
		),
		RatesInvalidTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fxhub_rates_invalid_total",
				Help: "Rates dropped for missing platform, symbol or timestamp",
			},
		),
		PublishedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_published_total",
				Help: "Messages published per channel",
			},
			[]string{"channel"},
		),
		PublishErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_publish_errors_total",
				Help: "Publish failures per channel",
			},
			[]string{"channel"},
		),
		DerivedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_derived_total",
				Help: "Derived rates computed per symbol",
			},
			[]string{"symbol"},
		),
		DerivedUnavailableTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxhub_derived_unavailable_total",
				Help: "Recomputations skipped for missing inputs",
			},
			[]string{"symbol"},
		),
		ConnectorUpGauge: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxhub_connector_up",
				Help: "1 when the platform connector is connected",
			},
			[]string{"platform"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RateReceived(platform string) {
	m.RatesReceivedTotal.WithLabelValues(platform).Inc()
}

func (m *Metrics) RateRejected(platform, symbol string) {
	m.RatesRejectedTotal.WithLabelValues(platform, symbol).Inc()
}

func (m *Metrics) RateInvalid() { m.RatesInvalidTotal.Inc() }

func (m *Metrics) Published(ch port.Channel) {
	m.PublishedTotal.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) PublishFailed(ch port.Channel) {
	m.PublishErrorsTotal.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) Derived(symbol string) {
	m.DerivedTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) DerivedUnavailable(symbol string) {
	m.DerivedUnavailableTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ConnectorUp(platform string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.ConnectorUpGauge.WithLabelValues(platform).Set(v)
}

var _ port.Metrics = (*Metrics)(nil)
