package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iokaravas/ksDiscordBot/internal/models"
)

const namespace = "ksbot"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// BotMetrics exports the latest campaign counters and cycle outcomes.
type BotMetrics struct {
	Pledged  prometheus.Gauge
	Backers  prometheus.Gauge
	Comments prometheus.Gauge
	Cycles   *prometheus.CounterVec
	Publish  *prometheus.CounterVec
}

// New creates and registers the bot metrics on reg.
func New(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		Pledged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pledged",
			Help:      "Amount pledged to the campaign at the last successful fetch.",
		}),
		Backers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backers",
			Help:      "Backer count at the last successful fetch.",
		}),
		Comments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "comments",
			Help:      "Comment count at the last successful fetch.",
		}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of poll cycles, by result.",
		}, []string{"result"}),
		Publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of successful publishes, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Pledged, m.Backers, m.Comments, m.Cycles, m.Publish)
	return m
}

func (m *BotMetrics) ObserveSnapshot(s models.Snapshot) {
	m.Pledged.Set(float64(s.Pledged))
	m.Backers.Set(float64(s.BackersCount))
	m.Comments.Set(float64(s.CommentsCount))
}

func (m *BotMetrics) ObserveCycle(result string) {
	m.Cycles.WithLabelValues(result).Inc()
}

func (m *BotMetrics) ObservePublish(outcome string) {
	m.Publish.WithLabelValues(outcome).Inc()
}
