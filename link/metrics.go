package link

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/temoto/linkctl/frame"
	"github.com/temoto/linkctl/helpers"
)

const MetricsNamespace = "linkctl"

// Metrics is optional, nil *Metrics ignores all observations.
type Metrics struct {
	FramesRecv  prometheus.Counter
	FramesSent  prometheus.Counter
	NoiseBytes  prometheus.Counter
	BadLength   prometheus.Counter
	BadCRC      prometheus.Counter
	BytesRecv   prometheus.Counter
	BytesSent   prometheus.Counter
	SendDropped prometheus.Counter
	Disconnects prometheus.Counter
	Zombies     prometheus.Counter

	Connects        *prometheus.CounterVec
	ConnectDuration prometheus.Histogram

	Connected prometheus.Gauge
	Reachable prometheus.Gauge
	Searching prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: MetricsNamespace, Subsystem: "link", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: MetricsNamespace, Subsystem: "link", Name: name, Help: help})
	}
	return &Metrics{
		FramesRecv:  counter("frames_received_total", "Valid frames received"),
		FramesSent:  counter("frames_sent_total", "Frames written to socket"),
		NoiseBytes:  counter("noise_bytes_total", "Bytes discarded while searching frame start"),
		BadLength:   counter("bad_length_total", "Frames rejected by declared length"),
		BadCRC:      counter("bad_crc_total", "Frames rejected by CRC mismatch"),
		BytesRecv:   counter("received_bytes_total", "Bytes read from socket"),
		BytesSent:   counter("sent_bytes_total", "Bytes written to socket"),
		SendDropped: counter("send_dropped_total", "Frames dropped on full send queue"),
		Disconnects: counter("disconnects_total", "Sessions terminated after connect"),
		Zombies:     counter("zombies_total", "Sessions force closed by liveness probe"),

		Connects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace, Subsystem: "link",
			Name: "connects_total",
			Help: "Connect attempts by result",
		}, []string{"result"}),
		ConnectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace, Subsystem: "link",
			Name:    "connect_duration_seconds",
			Help:    "Connect attempt duration",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		Connected: gauge("connected", "1 while session is connected"),
		Reachable: gauge("reachable", "1 while endpoint answers reachability probe"),
		Searching: gauge("searching", "1 while connection is being searched"),
	}
}

func (m *Metrics) recvAdder() helpers.Adder {
	if m == nil {
		return nil
	}
	return m.BytesRecv
}

func (m *Metrics) sentAdder() helpers.Adder {
	if m == nil {
		return nil
	}
	return m.BytesSent
}

func (m *Metrics) observeAssembler(d frame.AssemblerStat) {
	if m == nil {
		return
	}
	m.FramesRecv.Add(float64(d.Frames))
	m.NoiseBytes.Add(float64(d.NoiseBytes))
	m.BadLength.Add(float64(d.BadLength))
	m.BadCRC.Add(float64(d.BadCRC))
}

func (m *Metrics) frameSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) sendDropped() {
	if m != nil {
		m.SendDropped.Inc()
	}
}

func (m *Metrics) disconnect() {
	if m != nil {
		m.Disconnects.Inc()
	}
}

func (m *Metrics) zombie() {
	if m != nil {
		m.Zombies.Inc()
	}
}

func (m *Metrics) connect(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Connects.WithLabelValues(result).Inc()
	m.ConnectDuration.Observe(d.Seconds())
}

func (m *Metrics) setConnected(v bool) {
	if m != nil {
		m.Connected.Set(b2f(v))
	}
}

func (m *Metrics) setReachable(v bool) {
	if m != nil {
		m.Reachable.Set(b2f(v))
	}
}

func (m *Metrics) setSearching(v bool) {
	if m != nil {
		m.Searching.Set(b2f(v))
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
