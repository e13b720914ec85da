package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ja7ad/energymodel/pkg/energy"
)

// ModelSource walks the frequency domains of a published model.
// *energy.Model satisfies it.
type ModelSource interface {
	ForEachDomain(fn func(energy.FrequencyDomain, *energy.EnergyModel) bool)
}

// StatesCollector reports every capacity state of the published model at
// scrape time. Nothing is emitted while no model is published.
type StatesCollector struct {
	src ModelSource

	capacity   *prometheus.Desc
	power      *prometheus.Desc
	efficiency *prometheus.Desc
}

var _ prometheus.Collector = (*StatesCollector)(nil)

// NewStatesCollector returns a collector for src.
func NewStatesCollector(src ModelSource) *StatesCollector {
	labels := []string{"domain", "cpus", "state"}
	return &StatesCollector{
		src: src,
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity_state", "capacity"),
			"Compute capacity of a capacity state, on the 0-1024 scale.",
			labels, nil),
		power: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity_state", "power"),
			"Power drawn at a capacity state, in platform units.",
			labels, nil),
		efficiency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "capacity_state", "efficiency"),
			"Fixed-point capacity per unit of power of a capacity state.",
			labels, nil),
	}
}

// RegisterStates registers a StatesCollector for src against reg, defaulting
// to the global Prometheus registry when nil.
func RegisterStates(reg prometheus.Registerer, src ModelSource) (*StatesCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := NewStatesCollector(src)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *StatesCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.power
	ch <- c.efficiency
}

// Collect implements prometheus.Collector.
func (c *StatesCollector) Collect(ch chan<- prometheus.Metric) {
	c.src.ForEachDomain(func(d energy.FrequencyDomain, em *energy.EnergyModel) bool {
		domain := strconv.Itoa(d.ID)
		span := d.Span.String()
		for i, cs := range em.States {
			state := strconv.Itoa(i)
			ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(cs.Cap), domain, span, state)
			ch <- prometheus.MustNewConstMetric(c.power, prometheus.GaugeValue, float64(cs.Power), domain, span, state)
			ch <- prometheus.MustNewConstMetric(c.efficiency, prometheus.GaugeValue, float64(em.Efficiency(i)), domain, span, state)
		}
		return true
	})
}
