package health

import (
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	snap := Collect(Options{
		StartedAt:        time.Now().Add(-90 * time.Second),
		Conversations:    3,
		CaptureEnabled:   true,
		CaptureConnected: false,
		ScheduledJobs:    2,
	})

	if snap.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", snap.Status)
	}
	if snap.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want positive", snap.Goroutines)
	}
	if snap.Memory.AllocMB <= 0 {
		t.Errorf("Memory.AllocMB = %f, want positive", snap.Memory.AllocMB)
	}
	if snap.UptimeSeconds < 89 {
		t.Errorf("UptimeSeconds = %d, want about 90", snap.UptimeSeconds)
	}
	if snap.Conversations != 3 || snap.ScheduledJobs != 2 {
		t.Errorf("gauges = %d conversations, %d jobs, want 3 and 2", snap.Conversations, snap.ScheduledJobs)
	}
	if snap.Capture == nil || !snap.Capture.Enabled || snap.Capture.Connected {
		t.Errorf("Capture = %+v, want enabled but not connected", snap.Capture)
	}
}

func TestCollectWithoutCapture(t *testing.T) {
	snap := Collect(Options{})
	if snap.Capture != nil {
		t.Errorf("Capture = %+v, want omitted when disabled", snap.Capture)
	}
	if snap.UptimeSeconds != 0 {
		t.Errorf("UptimeSeconds = %d, want 0 without start time", snap.UptimeSeconds)
	}
}
