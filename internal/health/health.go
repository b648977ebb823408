// Package health reports process and service health.
package health

import (
	"runtime"
	"time"
)

// Options carries the service gauges the process cannot read itself.
type Options struct {
	StartedAt     time.Time
	Conversations int

	// Capture engine state. Enabled means an engine is wired,
	// Connected means a browser is attached right now.
	CaptureEnabled   bool
	CaptureConnected bool

	ScheduledJobs int
}

// Snapshot is one health report.
type Snapshot struct {
	Status        string       `json:"status"`
	UptimeSeconds int64        `json:"uptimeSeconds,omitempty"`
	Goroutines    int          `json:"goroutines"`
	Conversations int          `json:"conversations"`
	Memory        MemoryInfo   `json:"memory"`
	Runtime       RuntimeInfo  `json:"runtime"`
	Capture       *CaptureInfo `json:"capture,omitempty"`
	ScheduledJobs int          `json:"scheduledJobs,omitempty"`
	Timestamp     string       `json:"timestamp"`
}

// MemoryInfo summarizes heap usage.
type MemoryInfo struct {
	AllocMB      float64 `json:"allocMb"`
	TotalAllocMB float64 `json:"totalAllocMb"`
	SysMB        float64 `json:"sysMb"`
	NumGC        uint32  `json:"numGc"`
}

// RuntimeInfo identifies the Go runtime.
type RuntimeInfo struct {
	Version string `json:"version"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	CPUs    int    `json:"cpus"`
}

// CaptureInfo reports snapshot engine state.
type CaptureInfo struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// Collect returns a health snapshot for the current process.
func Collect(opts Options) Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Snapshot{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		Conversations: opts.Conversations,
		Memory: MemoryInfo{
			AllocMB:      float64(mem.Alloc) / 1024 / 1024,
			TotalAllocMB: float64(mem.TotalAlloc) / 1024 / 1024,
			SysMB:        float64(mem.Sys) / 1024 / 1024,
			NumGC:        mem.NumGC,
		},
		Runtime: RuntimeInfo{
			Version: runtime.Version(),
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			CPUs:    runtime.NumCPU(),
		},
		ScheduledJobs: opts.ScheduledJobs,
		Timestamp:     time.Now().Format(time.RFC3339),
	}
	if !opts.StartedAt.IsZero() {
		s.UptimeSeconds = int64(time.Since(opts.StartedAt).Seconds())
	}
	if opts.CaptureEnabled {
		s.Capture = &CaptureInfo{Enabled: true, Connected: opts.CaptureConnected}
	}
	return s
}
