package models

import (
	"strings"
	"time"
)

const (
	StatusRunning   = "running"
	HealthUnhealthy = "unhealthy"
)

// Snapshot is one poll of the host and its containers. Field names match the
// history document written by earlier releases so existing files keep loading.
type Snapshot struct {
	Timestamp string `json:"timestamp,omitempty"`

	CPUPercent  float64   `json:"cpu_percent"`
	CPUCount    int       `json:"cpu_count,omitempty"`
	RAMTotalGB  float64   `json:"ram_total_gb,omitempty"`
	RAMUsedGB   float64   `json:"ram_used_gb,omitempty"`
	RAMPercent  float64   `json:"ram_percent"`
	SwapTotalGB float64   `json:"swap_total_gb,omitempty"`
	SwapUsedGB  float64   `json:"swap_used_gb,omitempty"`
	Disks       []Disk    `json:"disks"`
	Network     *Network  `json:"network,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	UptimeSec   int64     `json:"uptime_seconds,omitempty"`
	LoadAverage []float64 `json:"load_average,omitempty"`

	Entities           []Entity    `json:"containers"`
	ContainersTotal    int         `json:"containers_total"`
	ContainersRunning  int         `json:"containers_running"`
	ContainersStopped  int         `json:"containers_stopped"`
	ContainersUnhealth int         `json:"containers_unhealthy"`
	DockerInfo         *DockerInfo `json:"docker_info,omitempty"`
	DockerError        string      `json:"docker_error,omitempty"`

	CollectErrors []string      `json:"collect_errors,omitempty"`
	Alert         *AlertSummary `json:"alert,omitempty"`
}

type Disk struct {
	Mount       string  `json:"mount"`
	Device      string  `json:"device,omitempty"`
	FSType      string  `json:"fstype,omitempty"`
	TotalGB     float64 `json:"total_gb,omitempty"`
	UsedGB      float64 `json:"used_gb,omitempty"`
	FreeGB      float64 `json:"free_gb,omitempty"`
	UsedPercent float64 `json:"used_percent"`
}

type Network struct {
	BytesSentMB float64 `json:"bytes_sent_mb"`
	BytesRecvMB float64 `json:"bytes_recv_mb"`
	PacketsSent uint64  `json:"packets_sent"`
	PacketsRecv uint64  `json:"packets_recv"`
	ErrorsIn    uint64  `json:"errors_in"`
	ErrorsOut   uint64  `json:"errors_out"`
}

// Entity is a single container observation inside a Snapshot. Restarts is the
// cumulative count reported by the runtime at collection time.
type Entity struct {
	Name       string   `json:"name"`
	ID         string   `json:"id,omitempty"`
	Status     string   `json:"status"`
	State      string   `json:"state,omitempty"`
	Health     string   `json:"health,omitempty"`
	Image      string   `json:"image,omitempty"`
	Restarts   int      `json:"restarts"`
	CPUPercent float64  `json:"cpu_percent"`
	MemMB      float64  `json:"mem_mb"`
	MemPercent float64  `json:"mem_percent"`
	NetRxMB    float64  `json:"net_rx_mb"`
	NetTxMB    float64  `json:"net_tx_mb"`
	Errors     []string `json:"errors"`
}

func (e Entity) Running() bool { return e.Status == StatusRunning }

func (e Entity) Unhealthy() bool { return strings.EqualFold(e.Health, HealthUnhealthy) }

type DockerInfo struct {
	ContainersTotal   int    `json:"containers_total"`
	ContainersRunning int    `json:"containers_running"`
	ContainersPaused  int    `json:"containers_paused"`
	ContainersStopped int    `json:"containers_stopped"`
	Images            int    `json:"images"`
	DockerVersion     string `json:"docker_version"`
}

// AlertSummary is the evaluator verdict recorded alongside the snapshot it was
// computed from.
type AlertSummary struct {
	HasCritical    bool     `json:"has_critical"`
	CriticalIssues []string `json:"critical_issues"`
	Warnings       []string `json:"warnings"`
}

var timestampLayouts = []struct {
	layout string
	naive  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02 15:04:05.999999999Z07:00", false},
	{"2006-01-02 15:04:05.999999999", true},
	{"2006-01-02", true},
}

// ParseTimestamp accepts RFC 3339 and ISO-8601 values without a zone, which are
// read as local time.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.naive {
			t, err = time.ParseInLocation(l.layout, v, time.Local)
		} else {
			t, err = time.Parse(l.layout, v)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s Snapshot) Time() (time.Time, bool) {
	return ParseTimestamp(s.Timestamp)
}

func (s Snapshot) Degraded() bool {
	return s.DockerError != "" || len(s.CollectErrors) > 0
}
