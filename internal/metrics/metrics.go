package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"healthwatch/internal/models"
	"healthwatch/internal/report"
)

const namespace = "healthwatch"

var statusValues = map[string]float64{
	report.StatusOK:       0,
	report.StatusWarning:  1,
	report.StatusCritical: 2,
	report.StatusNoData:   -1,
}

// Metrics owns a private registry so several instances can live in one
// process, which the tests rely on.
type Metrics struct {
	reg *prometheus.Registry

	hostCPU       prometheus.Gauge
	hostRAM       prometheus.Gauge
	diskUsed      *prometheus.GaugeVec
	containers    *prometheus.GaugeVec
	uptime        *prometheus.GaugeVec
	restarts      *prometheus.GaugeVec
	avgMem        *prometheus.GaugeVec
	problems      *prometheus.GaugeVec
	status        prometheus.Gauge
	historyCount  prometheus.Gauge
	historyBytes  prometheus.Gauge
	runs          *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		hostCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_cpu_percent", Help: "CPU usage of the latest snapshot.",
		}),
		hostRAM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_ram_percent", Help: "RAM usage of the latest snapshot.",
		}),
		diskUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "disk_used_percent", Help: "Disk usage per mount of the latest snapshot.",
		}, []string{"mount"}),
		containers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "containers", Help: "Containers in the latest snapshot by state.",
		}, []string{"state"}),
		uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "container_uptime_percent", Help: "Share of observations in which the container was running.",
		}, []string{"name"}),
		restarts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "container_restarts", Help: "Highest restart count reported in the report window.",
		}, []string{"name"}),
		avgMem: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "container_avg_mem_mb", Help: "Average memory over the report window.",
		}, []string{"name"}),
		problems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "problems", Help: "Flagged containers by severity.",
		}, []string{"severity"}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "report_status", Help: "Overall status: -1 no data, 0 ok, 1 warning, 2 critical.",
		}),
		historyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "history_entries", Help: "Entries currently retained in the history document.",
		}),
		historyBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "history_size_bytes", Help: "Size of the history document.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total", Help: "Monitor and report runs by outcome.",
		}, []string{"kind", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total", Help: "Notification dispatches by outcome.",
		}, []string{"status"}),
	}
	m.reg.MustRegister(
		m.hostCPU, m.hostRAM, m.diskUsed, m.containers,
		m.uptime, m.restarts, m.avgMem, m.problems, m.status,
		m.historyCount, m.historyBytes, m.runs, m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveSnapshot(s models.Snapshot) {
	m.hostCPU.Set(s.CPUPercent)
	m.hostRAM.Set(s.RAMPercent)
	m.diskUsed.Reset()
	for _, d := range s.Disks {
		m.diskUsed.WithLabelValues(d.Mount).Set(d.UsedPercent)
	}
	m.containers.WithLabelValues("running").Set(float64(s.ContainersRunning))
	m.containers.WithLabelValues("stopped").Set(float64(s.ContainersStopped))
	m.containers.WithLabelValues("unhealthy").Set(float64(s.ContainersUnhealth))
}

// ObserveReport replaces the per-container series with those of r so removed
// containers do not linger.
func (m *Metrics) ObserveReport(r report.Report) {
	m.status.Set(statusValues[r.Status])
	m.uptime.Reset()
	m.restarts.Reset()
	m.avgMem.Reset()
	for _, e := range r.Entities {
		m.uptime.WithLabelValues(e.Name).Set(e.UptimePercent)
		m.restarts.WithLabelValues(e.Name).Set(float64(e.Restarts))
		m.avgMem.WithLabelValues(e.Name).Set(e.AvgMemMB)
	}
	for _, sev := range []report.Severity{report.SeverityCritical, report.SeverityWarning, report.SeverityInfo} {
		m.problems.WithLabelValues(string(sev)).Set(float64(r.Count(sev)))
	}
	if r.Latest != nil {
		m.ObserveSnapshot(*r.Latest)
	}
}

func (m *Metrics) ObserveHistory(entries int, sizeBytes int64) {
	m.historyCount.Set(float64(entries))
	m.historyBytes.Set(float64(sizeBytes))
}

func (m *Metrics) ObserveRun(kind, status string) {
	m.runs.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveNotification(err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifications.WithLabelValues(status).Inc()
}
