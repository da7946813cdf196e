// Package monitor reports the health of the running server process.
package monitor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Health is the /api/health body. Process fields are zero when they could
// not be sampled, in which case Status is degraded and Error says why.
type Health struct {
	Status        string  `json:"status"`
	PID           int32   `json:"pid,omitempty"`
	UptimeSeconds float64 `json:"uptimeSeconds,omitempty"`
	Goroutines    int     `json:"goroutines,omitempty"`
	Threads       int32   `json:"threads,omitempty"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
	Sessions      int     `json:"sessions"`
	Subscribers   int     `json:"subscribers"`
	Error         string  `json:"error,omitempty"`
}

type StatsFunc func() service.Stats

type Reporter struct {
	proc  *process.Process
	stats StatsFunc
	now   func() time.Time
}

// NewReporter watches the current process.
func NewReporter(stats StatsFunc) (*Reporter, error) {
	return newReporter(int32(os.Getpid()), stats)
}

func newReporter(pid int32, stats StatsFunc) (*Reporter, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("watching process %d: %w", pid, err)
	}
	return &Reporter{proc: p, stats: stats, now: time.Now}, nil
}

// Report never fails on a sampling error; it downgrades the status instead
// so the endpoint keeps answering.
func (r *Reporter) Report(ctx context.Context) (Health, error) {
	h := Health{
		Status:     StatusOK,
		PID:        r.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
	}
	if r.stats != nil {
		s := r.stats()
		h.Sessions = s.Sessions
		h.Subscribers = s.Subscribers
	}

	info, err := Inspect(ctx, r.proc)
	if err != nil {
		h.Status = StatusDegraded
		h.Error = err.Error()
	}
	h.RSSBytes = info.RSSBytes
	h.CPUPercent = info.CPUPercent
	h.Threads = info.Threads
	if !info.StartTime.IsZero() {
		h.UptimeSeconds = r.now().Sub(info.StartTime).Seconds()
	}
	return h, nil
}
