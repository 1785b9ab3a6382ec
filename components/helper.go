package components

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/stream"
)

func safeSend(rec stream.Record,
	outputChan chan stream.Record,
	controlChan chan ControlAction,
	controlFunc func(c ControlAction),
) (recordSentOK bool) {
	select {
	case outputChan <- rec: // if we can send the record to the outputChan...
		return true // signal that data was sent OK.
	case c := <-controlChan: // if we were asked to shutdown...
		controlFunc(c) // handle the control action...
		return false   // signal that the caller should shutdown.
	}
}

func sendNilControlResponse(c ControlAction) {
	if c.ResponseChan != nil {
		c.ResponseChan <- nil // respond that we're done with a nil error.
	}
}

// raise aborts the calling step.
// The panic carries an error so the step's PanicHandlerFn can report it to whoever runs the pipeline.
func raise(stepName string, err error) {
	panic(errors.Wrap(err, stepName))
}

// raisef is raise for errors built from a format string.
func raisef(stepName string, format string, args ...interface{}) {
	panic(errors.Wrap(fmt.Errorf(format, args...), stepName))
}
