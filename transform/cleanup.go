package transform

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/components"
	"github.com/sirupsen/logrus"
)

// getPanicHandlerFunc creates a func that each step defers to recover from a panic.
// The recovered value becomes the transform's error and the remaining steps are told to shutdown.
func getPanicHandlerFunc(t *Transform, stepName string) components.PanicHandlerFunc {
	return func() {
		if r := recover(); r != nil { // if there was a panic...
			err := recoveredError(r)
			t.log.Error("Step ", stepName, " failed: ", err)
			t.shutdown(err)
		}
	}
}

// recoveredError extracts the error from a value returned by recover().
func recoveredError(r interface{}) error {
	switch x := r.(type) {
	case error:
		return x
	case *logrus.Entry: // if the step used Logger.Panic...
		return errors.New(x.Message)
	case string:
		return errors.New(x)
	default:
		return fmt.Errorf("%v", x)
	}
}
