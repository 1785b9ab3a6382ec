package transform

import (
	"context"
	"sync"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/relloyd/casepipe/components"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/rs/xid"
)

// Transform runs a group of component steps joined by channels.
// The first error raised by any step, or the cancellation of its context, shuts every step down
// and is returned by Wait().
type Transform struct {
	ctx      context.Context
	log      logger.Logger
	name     string
	guid     string
	stats    *stats.PipelineStatsManager
	waiter   *groupWaiter
	mu       sync.Mutex
	controls *ordered_map.OrderedMap // step name -> control channel
	status   TransformStatus
	err      error
	done     chan struct{}
}

// Step is the wiring a component config needs to take part in a Transform.
type Step struct {
	Name           string
	StepWatcher    *stats.StepWatcher
	WaitCounter    components.ComponentWaiter
	PanicHandlerFn components.PanicHandlerFunc
}

// NewTransform creates a Transform that is shutdown when ctx is cancelled.
func NewTransform(ctx context.Context, log logger.Logger, name string) *Transform {
	t := &Transform{
		ctx:      ctx,
		log:      log,
		name:     name,
		guid:     xid.New().String(),
		stats:    stats.NewPipelineStats(log),
		waiter:   newGroupWaiter(),
		controls: ordered_map.NewOrderedMap(),
		status:   TransformStatus{StartTime: time.Now(), Status: StatusRunning},
		done:     make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done(): // if the caller gave up...
			t.shutdown(ctx.Err())
		case <-t.done:
		}
	}()
	log.Debug("Transform ", name, " started with guid ", t.guid)
	return t
}

// NewStep registers stepName and returns the wiring to copy into its component config.
func (t *Transform) NewStep(stepName string) Step {
	return Step{
		Name:           stepName,
		StepWatcher:    t.stats.AddStepWatcher(stepName),
		WaitCounter:    t.waiter.newStepComponentWaiter(stepName),
		PanicHandlerFn: getPanicHandlerFunc(t, stepName),
	}
}

// AddControl saves the control channel of a launched step so it can be shutdown.
// If the transform has already failed the step is shutdown straight away.
func (t *Transform) AddControl(stepName string, controlChan chan components.ControlAction) {
	t.mu.Lock()
	t.controls.Set(stepName, controlChan)
	failed := t.err != nil
	t.mu.Unlock()
	if failed {
		sendShutdown(controlChan)
	}
}

// shutdown records err as the transform error, if it is the first, and asks every step to stop.
func (t *Transform) shutdown(err error) {
	t.mu.Lock()
	if t.err != nil { // if we are already shutting down...
		t.mu.Unlock()
		return
	}
	t.err = err
	t.status.Status = StatusShutdown
	chans := make([]chan components.ControlAction, 0, t.controls.Len())
	iter := t.controls.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		chans = append(chans, kv.Value.(chan components.ControlAction))
	}
	t.mu.Unlock()
	t.log.Info("Shutting down transform ", t.name, " (", t.guid, "): ", err)
	for _, ch := range chans {
		sendShutdown(ch)
	}
}

// sendShutdown requests a shutdown without blocking; steps that have finished never read it.
func sendShutdown(ch chan components.ControlAction) {
	select {
	case ch <- components.ControlAction{Action: components.Shutdown, ResponseChan: make(chan error, 1)}:
	default:
	}
}

// Wait blocks until every step is done and returns the first error raised.
func (t *Transform) Wait() error {
	t.waiter.Wait()
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	if t.err == nil && t.ctx.Err() != nil { // if we were cancelled before the watcher saw it...
		t.err = t.ctx.Err()
	}
	t.status.EndTime = time.Now()
	if t.err != nil {
		t.status.Status = StatusCompleteWithError
		t.status.Error = t.err.Error()
	} else {
		t.status.Status = StatusComplete
	}
	t.log.Debug("Transform ", t.name, " finished in ", t.status.EndTime.Sub(t.status.StartTime))
	return t.err
}

// Err returns the first error raised so far.
func (t *Transform) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transform) Status() TransformStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StepStatus returns the status of stepName.
func (t *Transform) StepStatus(stepName string) (StepStatus, bool) {
	return t.waiter.LoadStatus(stepName)
}

// GetStats returns the row stats of each step in the order the steps were added.
func (t *Transform) GetStats() []stats.Stats {
	return t.stats.GetStats()
}

func (t *Transform) Guid() string {
	return t.guid
}
