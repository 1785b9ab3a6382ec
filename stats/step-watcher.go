package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	c "github.com/relloyd/casepipe/constants"
	h "github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stream"
)

// StepWatcher saves row count stats for a given pipeline step periodically.
// The step calls StartWatching() when it begins and StopWatching() when it ends.
type StepWatcher struct {
	log             logger.Logger       // debug logging.
	stepName        string              // log lines and rendered stats use the step name.
	rowCountPtr     *int64              // ptr to the rowCount held by the step we are watching.
	chanPtr         *chan stream.Record // ptr to the step's output channel so we can len() it.
	chanLen         int64
	startTime       time.Time
	elapsedSec      int64
	rowsPerSecDelta int64
	rowsPerSecAvg   int64
	totalRows       int64
	priorRowCount   int64     // allows us to calculate delta rows per sec between ticker timeout.
	priorTime       time.Time // allows us to calculate delta rows per sec between ticker timeout.
	ticker          *time.Ticker
	tickerDone      chan struct{}
	isRunning       h.AtomBool
}

type Stats struct {
	StepName           string `json:"stepName"`
	StatusText         string `json:"statusText"`
	StatusEmoji        string `json:"statusEmoji"`
	ElapsedTimeSec     int    `json:"elapsedTimeSec"`
	TotalRowsProcessed int    `json:"totalRowsProcessed"`
	RowsPerSecondAvg   int    `json:"rowsPerSecondAvg"`
	RowsPerSecondDelta int    `json:"rowsPerSecondDelta"`
	OutputBufferLen    int    `json:"outputBufferLen"`
}

func NewStepWatcher(log logger.Logger, stepName string) *StepWatcher {
	return &StepWatcher{log: log, stepName: stepName, tickerDone: make(chan struct{}, 1)}
}

func (n *StepWatcher) StartWatching(rowCountPtr *int64, chanPtr *chan stream.Record) {
	// Save pointers to the step's row count and output channel.
	n.rowCountPtr = rowCountPtr
	n.chanPtr = chanPtr
	// Save the start time for delta calculations.
	n.startTime = time.Now()
	n.priorTime = n.startTime
	n.isRunning.Set(true)
	// Reset counters in case the step is restarted.
	atomic.StoreInt64(&n.totalRows, 0)
	atomic.StoreInt64(&n.priorRowCount, 0)
	// Calculate initial stats now.
	n.CalculateStats()
	// Calculate stats periodically on ticker timeout.
	n.ticker = time.NewTicker(time.Second * c.StatsCaptureFrequencySeconds)
	go func() {
		for {
			select {
			case <-n.ticker.C:
				n.CalculateStats()
			case <-n.tickerDone:
				return
			}
		}
	}()
}

func (n *StepWatcher) StopWatching() {
	n.ticker.Stop()
	n.tickerDone <- struct{}{} // stop the goroutine that calculates stats.
	n.CalculateStats()         // force final stats calculation.
	n.isRunning.Set(false)
	atomic.StoreInt64(&n.chanLen, 0) // the channel is closed or drained by now.
	n.log.Info(n.RenderStats().String())
}

func (n *StepWatcher) CalculateStats() {
	// Calculate the time since we last captured stats.
	deltaTime := int64(time.Since(n.priorTime).Seconds())
	if deltaTime < 1 { // if we will cause divide by 0 error...
		deltaTime = 1 // force div by 1.
	}
	// Save the current rows per second.
	rowCount := atomic.LoadInt64(n.rowCountPtr)
	deltaRowCount := rowCount - atomic.LoadInt64(&n.priorRowCount)
	atomic.StoreInt64(&n.rowsPerSecDelta, deltaRowCount/deltaTime)
	if n.chanPtr != nil { // if the step has an output channel to measure...
		atomic.StoreInt64(&n.chanLen, int64(len(*n.chanPtr)))
	}
	n.log.Debug("STATS: ", n.stepName, " processing ", atomic.LoadInt64(&n.rowsPerSecDelta), " rows per sec. Output channel length ", atomic.LoadInt64(&n.chanLen))
	// Save current values for the next ticker timeout.
	atomic.StoreInt64(&n.priorRowCount, rowCount)
	n.priorTime = time.Now()
	total := atomic.AddInt64(&n.totalRows, deltaRowCount) // this may be the final value.
	atomic.StoreInt64(&n.elapsedSec, int64(time.Since(n.startTime).Seconds()))
	// Save the average rows per second since the step started.
	atomic.StoreInt64(&n.rowsPerSecAvg, total/getNumSecondsSinceTimeOrOne(n.startTime))
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *StepWatcher) RenderStats() Stats {
	var statusText, statusEmoji string
	if n.isRunning.Get() {
		statusText = "running"
		statusEmoji = "\U0000231B" // hour glass
	} else {
		statusText = "complete"
		statusEmoji = "\U00002705" // green tick
	}
	return Stats{
		StepName:           n.stepName,
		StatusText:         statusText,
		StatusEmoji:        statusEmoji,
		ElapsedTimeSec:     int(atomic.LoadInt64(&n.elapsedSec)),
		TotalRowsProcessed: int(atomic.LoadInt64(&n.totalRows)),
		RowsPerSecondAvg:   int(atomic.LoadInt64(&n.rowsPerSecAvg)),
		RowsPerSecondDelta: int(atomic.LoadInt64(&n.rowsPerSecDelta)),
		OutputBufferLen:    int(atomic.LoadInt64(&n.chanLen)),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"totalRowsProcessed=%v "+
			"rowsPerSecondAvg=%v "+
			"rowsPerSecondDelta=%v "+
			"outputBufferLen=%v",
		s.StepName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeSec,
		s.TotalRowsProcessed,
		s.RowsPerSecondAvg,
		s.RowsPerSecondDelta,
		s.OutputBufferLen,
	)
}

func getNumSecondsSinceTimeOrOne(t time.Time) (seconds int64) {
	seconds = int64(time.Since(t).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
