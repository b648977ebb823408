package channel

import (
	"context"
	"fmt"

	"github.com/tradeberg/tradeberg/schedule"
)

// ScheduleChannel runs the snapshot scheduler as a managed channel so
// it starts and stops with the other surfaces. It produces no user
// traffic itself; fired jobs reach the conversation through the chat
// service and show up on the bus like any other capture.
type ScheduleChannel struct {
	scheduler *schedule.Scheduler
	seeds     []schedule.Job
}

// NewScheduleChannel wraps a scheduler. Seeds are config-declared jobs
// merged into the store on start.
func NewScheduleChannel(scheduler *schedule.Scheduler, seeds []schedule.Job) *ScheduleChannel {
	return &ScheduleChannel{scheduler: scheduler, seeds: seeds}
}

func (c *ScheduleChannel) Name() string { return "schedule" }

func (c *ScheduleChannel) Start(ctx context.Context) error {
	if err := c.scheduler.Load(); err != nil {
		return fmt.Errorf("failed to load snapshot jobs: %w", err)
	}
	if err := c.scheduler.Seed(c.seeds); err != nil {
		return err
	}
	c.scheduler.Start()
	return nil
}

func (c *ScheduleChannel) Stop() error {
	c.scheduler.Stop()
	return nil
}
