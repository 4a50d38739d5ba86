package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom holds the Prometheus collectors of the dashboard.
type Prom struct {
	reg *prometheus.Registry

	relayToggles   *prometheus.CounterVec
	moistureChecks *prometheus.CounterVec
	healthChecks   *prometheus.CounterVec
	captures       prometheus.Counter
	sessions       prometheus.Gauge
}

func NewProm() *Prom {
	p := &Prom{
		reg: prometheus.NewRegistry(),
		relayToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantdash_relay_toggles_total",
			Help: "Relay toggles by plant, relay and resulting state.",
		}, []string{"plant", "relay", "state"}),
		moistureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantdash_moisture_checks_total",
			Help: "Soil moisture checks by plant and moisture level.",
		}, []string{"plant", "level"}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantdash_waterproof_checks_total",
			Help: "Waterproof sensor checks by plant and result.",
		}, []string{"plant", "healthy"}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plantdash_captures_total",
			Help: "Camera images captured.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plantdash_active_sessions",
			Help: "Browsing sessions currently held in memory.",
		}),
	}

	p.reg.MustRegister(
		p.relayToggles,
		p.moistureChecks,
		p.healthChecks,
		p.captures,
		p.sessions,
	)

	return p
}

func (p *Prom) RelayToggled(plant, relay int, on bool) {
	state := "off"
	if on {
		state = "on"
	}

	p.relayToggles.WithLabelValues(strconv.Itoa(plant), strconv.Itoa(relay), state).Inc()
}

func (p *Prom) MoistureChecked(plant int, level string) {
	p.moistureChecks.WithLabelValues(strconv.Itoa(plant), level).Inc()
}

func (p *Prom) WaterproofChecked(plant int, healthy bool) {
	p.healthChecks.WithLabelValues(strconv.Itoa(plant), strconv.FormatBool(healthy)).Inc()
}

func (p *Prom) ImageCaptured() {
	p.captures.Inc()
}

func (p *Prom) ActiveSessions(n int) {
	p.sessions.Set(float64(n))
}

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
