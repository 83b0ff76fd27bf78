package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics - Prometheus-метрики сервера. Нулевой *Metrics ничего не считает.
type Metrics struct {
	clients      prometheus.Gauge
	emergeQueue  prometheus.Gauge
	blocksSent   prometheus.Counter
	emerged      *prometheus.CounterVec
	blocksSaved  prometheus.Counter
	tickDuration prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "clients", Help: "Connected clients.",
		}),
		emergeQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "emerge_queue_length", Help: "Blocks waiting in the emerge queue.",
		}),
		blocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "blocks_sent_total", Help: "BLOCKDATA messages sent.",
		}),
		emerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "blocks_emerged_total", Help: "Emerge requests by outcome.",
		}, []string{"result"}),
		blocksSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "blocks_saved_total", Help: "Blocks written to storage.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel", Subsystem: "server",
			Name: "tick_duration_seconds", Help: "Duration of AsyncRunStep.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.clients, m.emergeQueue, m.blocksSent, m.emerged, m.blocksSaved, m.tickDuration)
	}
	return m
}

func (m *Metrics) setClients(n int) {
	if m != nil {
		m.clients.Set(float64(n))
	}
}

func (m *Metrics) setEmergeQueue(n int) {
	if m != nil {
		m.emergeQueue.Set(float64(n))
	}
}

func (m *Metrics) blockSent() {
	if m != nil {
		m.blocksSent.Inc()
	}
}

// emergeResult: "loaded", "generated" или "missing".
func (m *Metrics) emergeResult(result string) {
	if m != nil {
		m.emerged.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) saved(n int) {
	if m != nil && n > 0 {
		m.blocksSaved.Add(float64(n))
	}
}

func (m *Metrics) tick(seconds float64) {
	if m != nil {
		m.tickDuration.Observe(seconds)
	}
}
