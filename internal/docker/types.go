package docker

import "strings"

// ContainerSummary is one entry of GET /containers/json.
type ContainerSummary struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Labels  map[string]string `json:"Labels"`
	Created int64             `json:"Created"`
}

// Name returns the primary container name without the leading slash.
func (c ContainerSummary) Name() string {
	if len(c.Names) == 0 {
		return ShortID(c.ID)
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

type healthState struct {
	Status string `json:"Status"`
}

type containerState struct {
	Status    string       `json:"Status"`
	Running   bool         `json:"Running"`
	StartedAt string       `json:"StartedAt"`
	Health    *healthState `json:"Health"`
}

// ContainerInspect holds the fields of GET /containers/{id}/json that feed
// an entity record.
type ContainerInspect struct {
	ID           string         `json:"Id"`
	Name         string         `json:"Name"`
	Created      string         `json:"Created"`
	RestartCount int            `json:"RestartCount"`
	State        containerState `json:"State"`
	Config       struct {
		Image string `json:"Image"`
	} `json:"Config"`
}

func (c ContainerInspect) HealthStatus() string {
	if c.State.Health == nil {
		return ""
	}
	return c.State.Health.Status
}

type cpuUsage struct {
	TotalUsage  uint64   `json:"total_usage"`
	PercpuUsage []uint64 `json:"percpu_usage"`
}

type cpuStats struct {
	CPUUsage       cpuUsage `json:"cpu_usage"`
	SystemCPUUsage uint64   `json:"system_cpu_usage"`
	OnlineCPUs     uint64   `json:"online_cpus"`
}

type memoryStats struct {
	Usage uint64 `json:"usage"`
	Limit uint64 `json:"limit"`
}

// Stats is a single non-streamed sample from /containers/{id}/stats.
type Stats struct {
	Read        string                  `json:"read"`
	CPUStats    cpuStats                `json:"cpu_stats"`
	PreCPUStats cpuStats                `json:"precpu_stats"`
	MemoryStats memoryStats             `json:"memory_stats"`
	Networks    map[string]NetworkStats `json:"networks"`
}

type NetworkStats struct {
	RxBytes uint64 `json:"rx_bytes"`
	TxBytes uint64 `json:"tx_bytes"`
}

// Info carries the engine-wide counters reported by GET /info.
type Info struct {
	Containers        int    `json:"Containers"`
	ContainersRunning int    `json:"ContainersRunning"`
	ContainersPaused  int    `json:"ContainersPaused"`
	ContainersStopped int    `json:"ContainersStopped"`
	Images            int    `json:"Images"`
	ServerVersion     string `json:"ServerVersion"`
}

func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
