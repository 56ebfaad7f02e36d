package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conduit"

var (
	messagesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "relay", "messages_total"),
		"Messages handled by a relay, by stage.",
		[]string{"relay", "stage"}, nil,
	)
	pendingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "relay", "pending"),
		"Messages waiting on the relay input.",
		[]string{"relay"}, nil,
	)
	stateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "relay", "state"),
		"Current relay state (1 for the active state).",
		[]string{"relay", "state"}, nil,
	)
	aliveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "model", "alive"),
		"Whether a model is running.",
		[]string{"model"}, nil,
	)
	exitDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "model", "exit_code"),
		"Exit code of a model, -1 while running.",
		[]string{"model"}, nil,
	)
	failedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "failed"),
		"Set once any model reported an error.",
		nil, nil,
	)
)

// Collector publishes snapshots of a Source as const metrics on every scrape.
type Collector struct {
	source Source
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector wraps source.
func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{messagesDesc, pendingDesc, stateDesc, aliveDesc, exitDesc, failedDesc} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()
	for _, s := range snap.Relays {
		ch <- prometheus.MustNewConstMetric(messagesDesc, prometheus.CounterValue, float64(s.Received), s.Name, "received")
		ch <- prometheus.MustNewConstMetric(messagesDesc, prometheus.CounterValue, float64(s.Processed), s.Name, "processed")
		ch <- prometheus.MustNewConstMetric(messagesDesc, prometheus.CounterValue, float64(s.Sent), s.Name, "sent")
		ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(s.Pending), s.Name)
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, 1, s.Name, string(s.State))
	}
	for _, m := range snap.Models {
		ch <- prometheus.MustNewConstMetric(aliveDesc, prometheus.GaugeValue, boolValue(m.Alive), m.Name)
		ch <- prometheus.MustNewConstMetric(exitDesc, prometheus.GaugeValue, float64(m.ExitCode), m.Name)
	}
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.GaugeValue, boolValue(snap.Failed))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
