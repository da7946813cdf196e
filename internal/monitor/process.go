package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v3/process"
)

type ProcessInfo struct {
	PID        int32
	StartTime  time.Time
	RSSBytes   uint64
	CPUPercent float64
	Threads    int32
	CmdLine    string
}

// Inspect samples resource usage for p. Every field is attempted; the
// returned error lists the ones that could not be read, and the fields that
// were read are still filled in.
func Inspect(ctx context.Context, p *process.Process) (ProcessInfo, error) {
	info := ProcessInfo{PID: p.Pid}
	var result *multierror.Error

	if created, err := p.CreateTimeWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("create time: %w", err))
	} else {
		info.StartTime = time.UnixMilli(created)
	}

	if mem, err := p.MemoryInfoWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("memory: %w", err))
	} else if mem != nil {
		info.RSSBytes = mem.RSS
	}

	if cpu, err := p.CPUPercentWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("cpu: %w", err))
	} else {
		info.CPUPercent = cpu
	}

	if threads, err := p.NumThreadsWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("threads: %w", err))
	} else {
		info.Threads = threads
	}

	if args, err := p.CmdlineSliceWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("cmdline: %w", err))
	} else {
		info.CmdLine = cleanCmdline(args)
	}

	return info, result.ErrorOrNil()
}

func cleanCmdline(args []string) string {
	var cleaned []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return strings.Join(cleaned, " ")
}
