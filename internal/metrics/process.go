package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is the resource usage of the running gosock process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	OpenFDs    int32   `json:"open_fds"`
	Threads    int32   `json:"threads"`
}

// SampleProcess reads the current process's memory, CPU, descriptor
// and thread counts.  Descriptor count is left at zero where the
// platform cannot report it.
func SampleProcess() (*ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	ps := &ProcessStats{PID: p.Pid, RSSBytes: mem.RSS}
	if cpu, err := p.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumFDs(); err == nil {
		ps.OpenFDs = n
	}
	if n, err := p.NumThreads(); err == nil {
		ps.Threads = n
	}
	return ps, nil
}
