package system

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a point-in-time view of host and process load.
type Usage struct {
	CPUPercent   float64 // host, all cores
	MemUsedMB    float64 // host
	ProcessRSSMB float64
	LogicalCores int
}

// Snapshot samples CPU and memory usage. Missing values stay zero; the
// report is informational only.
func Snapshot(ctx context.Context) Usage {
	var u Usage

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		u.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		u.MemUsedMB = float64(vm.Used) / (1 << 20)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		u.LogicalCores = n
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			u.ProcessRSSMB = float64(info.RSS) / (1 << 20)
		}
	}

	return u
}

// AppendBenchmark appends one line to the benchmark log file.
func AppendBenchmark(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), line)
	return err
}
