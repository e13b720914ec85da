// Package metrics exports the energy model over Prometheus: build outcomes
// through an energy.Observer, and the published capacity states through a
// collector read at scrape time.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ja7ad/energymodel/pkg/energy"
)

const namespace = "energy_model"

// Collector bundles the build metrics of an energy model. It implements
// energy.Observer and is meant to be passed in energy.Config.
type Collector struct {
	gatherer prometheus.Gatherer

	Enabled            prometheus.Gauge
	Domains            prometheus.Gauge
	CPUs               prometheus.Gauge
	BuildFailures      prometheus.Counter
	EfficiencyWarnings *prometheus.CounterVec
}

var _ energy.Observer = (*Collector)(nil)

// NewCollector registers the build metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	enabled, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "enabled",
		Help:      "1 when an energy model is published, 0 otherwise.",
	}), "enabled")
	if err != nil {
		return nil, err
	}
	domains, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "domains",
		Help:      "Number of frequency domains in the published model.",
	}), "domains")
	if err != nil {
		return nil, err
	}
	cpus, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cpus",
		Help:      "Number of CPU ids covered by the published model.",
	}), "cpus")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "build_failures_total",
		Help:      "Total number of model constructions rolled back.",
	}), "build_failures_total")
	if err != nil {
		return nil, err
	}
	warnings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "efficiency_warnings_total",
		Help:      "Capacity states whose cap/power ratio does not decrease, labeled by cpu.",
	}, []string{"cpu"}), "efficiency_warnings_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		Enabled:            enabled,
		Domains:            domains,
		CPUs:               cpus,
		BuildFailures:      failures,
		EfficiencyWarnings: warnings,
	}, nil
}

// Published implements energy.Observer.
func (c *Collector) Published(domains, cpus int) {
	if c == nil {
		return
	}
	c.Enabled.Set(1)
	c.Domains.Set(float64(domains))
	c.CPUs.Set(float64(cpus))
}

// BuildFailed implements energy.Observer.
func (c *Collector) BuildFailed(error) {
	if c == nil {
		return
	}
	c.Enabled.Set(0)
	c.BuildFailures.Inc()
}

// EfficiencyWarning implements energy.Observer.
func (c *Collector) EfficiencyWarning(cpu, _ int) {
	if c == nil {
		return
	}
	c.EfficiencyWarnings.WithLabelValues(strconv.Itoa(cpu)).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
