package components

import (
	"sync/atomic"

	"github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	s "github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
)

type ChannelCombinerConfig struct {
	Log            logger.Logger
	Name           string
	Chan1          chan stream.Record
	Chan2          chan stream.Record
	StepWatcher    *s.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewChannelCombiner will accept 2 input channels and collect all rows onto the outputChan.
// Every row of Chan1 is output before any row of Chan2 so downstream steps see a stable arrival order.
func NewChannelCombiner(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*ChannelCombinerConfig)
	outputChan = make(chan stream.Record, constants.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		defer close(outputChan)
		cfg.Log.Info(cfg.Name, " is running")
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		if cfg.PanicHandlerFn != nil { // runs before Done() and close() so Wait() sees the error...
			defer cfg.PanicHandlerFn()
		}
		rowCount := int64(0)
		if cfg.StepWatcher != nil { // if we have been given a StepWatcher struct that can watch our rowCount and output channel length...
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		for _, input := range []chan stream.Record{cfg.Chan1, cfg.Chan2} { // for each input channel in turn...
			if input == nil {
				continue
			}
			for done := false; !done; {
				select {
				case rec, ok := <-input:
					if !ok { // if this channel is closed...
						done = true
						break
					}
					if recSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !recSentOK { // forward the record
						cfg.Log.Info(cfg.Name, " shutdown")
						return
					}
					atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
				case controlAction := <-controlChan: // if we have been asked to shutdown...
					sendNilControlResponse(controlAction)
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
			}
		}
		cfg.Log.Info(cfg.Name, " complete")
	}()
	return
}
