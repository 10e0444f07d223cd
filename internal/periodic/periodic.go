// Package periodic runs a function on a fixed interval until its context is
// cancelled or it is explicitly stopped.
package periodic

import (
	"context"
	"log"
	"time"
)

// Task runs runFunc immediately (or after an initial delay) and then every
// interval, until ctx is done or Stop is called. It is the shared shape
// behind every tick loop in the system: the Modbus poller and the site
// controller.
type Task struct {
	Name         string
	InitialDelay time.Duration
	Interval     time.Duration
	RunFunc      func(ctx context.Context)

	stop chan struct{}
}

// Run blocks until ctx is cancelled or Stop is called.
func (t *Task) Run(ctx context.Context, logger *log.Logger) {
	if t.stop == nil {
		t.stop = make(chan struct{})
	}

	if t.InitialDelay > 0 {
		select {
		case <-time.After(t.InitialDelay):
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		}
	}

	t.RunFunc(ctx)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.RunFunc(ctx)
		case <-ctx.Done():
			if logger != nil {
				logger.Printf("[%s] stopped: %v", t.Name, ctx.Err())
			}
			return
		case <-t.stop:
			if logger != nil {
				logger.Printf("[%s] stopped", t.Name)
			}
			return
		}
	}
}

// Stop signals Run to return at its next select point. Safe to call once.
func (t *Task) Stop() {
	if t.stop == nil {
		return
	}
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
