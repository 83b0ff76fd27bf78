package network

import "github.com/prometheus/client_golang/prometheus"

// Metrics - Prometheus-метрики транспорта. Нулевой *Metrics допустим
// и ничего не считает.
type Metrics struct {
	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	resends         prometheus.Counter
	acks            prometheus.Counter
	splits          prometheus.Counter
	invalid         prometheus.Counter
	unknownPeer     prometheus.Counter
	peers           prometheus.Gauge
	rtt             prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "packets_sent_total", Help: "UDP packets sent.",
		}),
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "packets_received_total", Help: "UDP packets received.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "bytes_sent_total", Help: "Bytes sent including headers.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "bytes_received_total", Help: "Bytes received including headers.",
		}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "reliable_resends_total", Help: "Reliable packets sent again after a timeout.",
		}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "acks_received_total", Help: "Acknowledgements matched to an outgoing reliable packet.",
		}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "splits_reassembled_total", Help: "Split messages reassembled.",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "invalid_packets_total", Help: "Packets dropped as malformed.",
		}),
		unknownPeer: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "unknown_peer_packets_total", Help: "Packets dropped because the sender id is not in the peer table.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "peers", Help: "Peers in the peer table.",
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel", Subsystem: "network",
			Name: "rtt_seconds", Help: "Round trip time of reliable packets.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.packetsSent, m.packetsReceived, m.bytesSent, m.bytesReceived,
			m.resends, m.acks, m.splits, m.invalid, m.unknownPeer, m.peers, m.rtt)
	}
	return m
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) resent() {
	if m != nil {
		m.resends.Inc()
	}
}

func (m *Metrics) acked(rtt float32) {
	if m == nil {
		return
	}
	m.acks.Inc()
	m.rtt.Observe(float64(rtt))
}

func (m *Metrics) reassembled() {
	if m != nil {
		m.splits.Inc()
	}
}

func (m *Metrics) invalidPacket() {
	if m != nil {
		m.invalid.Inc()
	}
}

func (m *Metrics) unknownPeerPacket() {
	if m != nil {
		m.unknownPeer.Inc()
	}
}

func (m *Metrics) setPeers(n int) {
	if m != nil {
		m.peers.Set(float64(n))
	}
}
