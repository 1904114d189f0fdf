package boxmgr

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "boxmgr"

// Collector exports the supervisor's status board as Prometheus metrics.
// Values are read at scrape time.
type Collector struct {
	s *Supervisor

	running     *prometheus.Desc
	info        *prometheus.Desc
	memory      *prometheus.Desc
	connections *prometheus.Desc
	traffic     *prometheus.Desc
	speed       *prometheus.Desc
	starts      *prometheus.Desc
}

// NewCollector creates a Collector for s
func NewCollector(s *Supervisor) *Collector {
	return &Collector{
		s: s,
		running: prometheus.NewDesc(metricsNamespace+"_core_running",
			"Whether a core process is alive.", nil, nil),
		info: prometheus.NewDesc(metricsNamespace+"_core_info",
			"Running configuration and core version.", []string{"config", "version"}, nil),
		memory: prometheus.NewDesc(metricsNamespace+"_core_memory_bytes",
			"Memory in use reported by the core.", nil, nil),
		connections: prometheus.NewDesc(metricsNamespace+"_core_connections",
			"Open connections reported by the core.", nil, nil),
		traffic: prometheus.NewDesc(metricsNamespace+"_core_traffic_bytes",
			"Cumulative traffic since the core started.", []string{"direction"}, nil),
		speed: prometheus.NewDesc(metricsNamespace+"_core_speed_bytes_per_second",
			"Current transfer rate.", []string{"direction"}, nil),
		starts: prometheus.NewDesc(metricsNamespace+"_core_starts_total",
			"Core start attempts by result.", []string{"result"}, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.info
	ch <- c.memory
	ch <- c.connections
	ch <- c.traffic
	ch <- c.speed
	ch <- c.starts
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.s.Status()

	running := 0.0
	if st.IsRunning {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, st.RunningConfig, st.CoreVersion)
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(st.MemoryUsage))
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(st.ConnectionCount))
	ch <- prometheus.MustNewConstMetric(c.traffic, prometheus.CounterValue, float64(st.UploadTraffic), "upload")
	ch <- prometheus.MustNewConstMetric(c.traffic, prometheus.CounterValue, float64(st.DownloadTraffic), "download")
	ch <- prometheus.MustNewConstMetric(c.speed, prometheus.GaugeValue, float64(st.UploadSpeed), "upload")
	ch <- prometheus.MustNewConstMetric(c.speed, prometheus.GaugeValue, float64(st.DownloadSpeed), "download")

	ok, failed := c.s.Starts()
	ch <- prometheus.MustNewConstMetric(c.starts, prometheus.CounterValue, float64(ok), "success")
	ch <- prometheus.MustNewConstMetric(c.starts, prometheus.CounterValue, float64(failed), "failure")
}
