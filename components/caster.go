package components

import (
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
)

type CasterConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Columns        td.TableColumns
	FailurePolicy  string // null (default) or fail
	CastFailures   *int64 // optional count of values that failed to cast.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewCaster casts every declared column to its type and outputs records holding exactly the declared columns.
// Missing fields become nil.
// Values that fail to cast become nil under the null policy; under the fail policy the step aborts
// with an error wrapping tabledefinition.ErrCastFailed.
func NewCaster(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*CasterConfig)
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		defer close(outputChan)
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
		if len(cfg.Columns.Columns) == 0 {
			raisef(cfg.Name, "missing columns to cast")
		}
		switch cfg.FailurePolicy {
		case "":
			cfg.FailurePolicy = c.CastFailurePolicyNull
		case c.CastFailurePolicyNull, c.CastFailurePolicyFail:
		default:
			raisef(cfg.Name, "unsupported cast failure policy %q", cfg.FailurePolicy)
		}
		cfg.Log.Info(cfg.Name, " is running with cast failure policy ", cfg.FailurePolicy)
		failures := make(map[string]int)
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					logCastFailures(cfg.Log, cfg.Name, failures)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				out := stream.NewRecord()
				for _, col := range cfg.Columns.Columns { // for each declared column...
					v, _ := rec.Lookup(col.Target)
					cv, err := td.CastValue(v, col.Type)
					if err != nil { // if the value would not cast...
						if cfg.FailurePolicy == c.CastFailurePolicyFail {
							raise(cfg.Name, errors.Wrapf(err, "column %v", col.Target))
						}
						cfg.Log.Debug(cfg.Name, " set ", col.Target, " to null: ", err)
						failures[col.Target]++
						if cfg.CastFailures != nil {
							atomic.AddInt64(cfg.CastFailures, 1)
						}
						cv = nil
					}
					out.SetData(col.Target, cv)
				}
				if recSentOK := safeSend(out, outputChan, controlChan, sendNilControlResponse); !recSentOK {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
				atomic.AddInt64(&rowCount, 1)
			case controlAction := <-controlChan: // if we were asked to shutdown...
				sendNilControlResponse(controlAction)
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}

func logCastFailures(log logger.Logger, name string, failures map[string]int) {
	cols := make([]string, 0, len(failures))
	for k := range failures {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	for _, col := range cols {
		log.Warn(name, " cast ", failures[col], " values of column ", col, " to null")
	}
}
