package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Collector exports the executor's health snapshot at scrape time.
type Collector struct {
	exec     *Executor
	healthy  *prometheus.Desc
	failures *prometheus.Desc
	state    *prometheus.Desc
	tokens   *prometheus.Desc
}

// NewCollector builds a collector; register it with a prometheus registry.
func NewCollector(namespace string, exec *Executor) *Collector {
	labels := []string{"service"}
	return &Collector{
		exec: exec,
		healthy: prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "healthy"),
			"1 when the service's last outcomes were healthy, 0 otherwise.", labels, nil),
		failures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "consecutive_failures"),
			"Consecutive failed calls per service.", labels, nil),
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, "circuit_breaker", "state"),
			"Breaker state: 0 closed, 1 half-open, 2 open.", labels, nil),
		tokens: prometheus.NewDesc(prometheus.BuildFQName(namespace, "rate_limiter", "tokens"),
			"Tokens currently available in the service's bucket.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.healthy
	ch <- c.failures
	ch <- c.state
	ch <- c.tokens
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, rec := range c.exec.Snapshot().Services {
		healthy := 0.0
		if rec.Status == StatusHealthy {
			healthy = 1
		}
		ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthy, rec.Service)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(rec.ConsecutiveFailures), rec.Service)

		guard := c.exec.Registry().Guard(rec.Service)
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, stateValue(guard.Breaker.State()), rec.Service)
		if rec.Tokens != nil {
			ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, *rec.Tokens, rec.Service)
		}
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

var _ prometheus.Collector = (*Collector)(nil)
