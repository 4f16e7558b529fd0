package metrics

import (
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
)

const (
	MetricCPUUTimeSeconds = "orderer_bench_cpu_utime_seconds"
	MetricCPUSTimeSeconds = "orderer_bench_cpu_stime_seconds"

	// ClockTicks is getconf CLK_TCK.
	ClockTicks = 100
)

var (
	utimeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricCPUUTimeSeconds,
			Help: "CPU user time spent by the bench as reported by /proc/<PID>/stat (seconds).",
		},
	)

	stimeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricCPUSTimeSeconds,
			Help: "CPU system time spent by the bench as reported by /proc/<PID>/stat (seconds).",
		},
	)

	cpuCollectors  = []prometheus.Collector{utimeGauge, stimeGauge}
	cpuServiceOnce sync.Once
)

type cpuCollector struct {
	pid int
}

func (c *cpuCollector) Name() string {
	return "cpu"
}

func (c *cpuCollector) Update() error {
	proc, err := procfs.NewProc(c.pid)
	if err != nil {
		return fmt.Errorf("CPU metric: failed to obtain proc object for PID %d: %w", c.pid, err)
	}
	procStat, err := proc.Stat()
	if err != nil {
		return fmt.Errorf("CPU metric: failed to obtain procStat object %d: %w", c.pid, err)
	}

	utimeGauge.Set(float64(procStat.UTime) / float64(ClockTicks))
	stimeGauge.Set(float64(procStat.STime) / float64(ClockTicks))

	return nil
}

// newCPUCollector constructs a new CPU usage collector.
//
// The collector reads CPU spent time info from the process Stat file, so it
// is only available on hosts with procfs.
func newCPUCollector() (ResourceCollector, error) {
	pid := os.Getpid()
	if _, err := procfs.NewProc(pid); err != nil {
		return nil, fmt.Errorf("CPU metric: no procfs stat for PID %d: %w", pid, err)
	}

	// CPU metrics are singletons per process. Ensure to register them only once.
	cpuServiceOnce.Do(func() {
		prometheus.MustRegister(cpuCollectors...)
	})

	return &cpuCollector{pid: pid}, nil
}
