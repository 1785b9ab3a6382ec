package components

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/diegoholiveira/jsonlogic"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
)

type FilterType string
type FilterMetadata string

type mapFilterFuncs map[FilterType]filterSetupFunc
type filterSetupFunc func(log logger.Logger, metadata FilterMetadata) (filterFunc, error)
type filterFunc func(data stream.Record) (stream.Record, error)

const (
	FilterRowsJsonLogic FilterType = "JsonLogic"
	FilterRowsNotEmpty  FilterType = "NotEmpty"
)

var filterTypes = mapFilterFuncs{
	FilterRowsJsonLogic: setupJsonLogicFilter, // FilterMetadata is the JSON Logic rule.
	FilterRowsNotEmpty:  setupNotEmptyFilter,  // FilterMetadata is the field name that must have a value.
}

type FilterRowsConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	FilterType     FilterType     // one of the keys in the filterTypes map.
	FilterMetadata FilterMetadata // config for the chosen filter.
	DroppedCount   *int64         // optional count of rows removed by the filter.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewFilterRows accepts a FilterRowsConfig{} and outputs rows if they match the given filter.
func NewFilterRows(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*FilterRowsConfig)
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
		fnGetFilter, ok := filterTypes[cfg.FilterType]
		if !ok {
			raisef(cfg.Name, "unable to find filter function using name %q", cfg.FilterType)
		}
		// Set up the filter by supplying the metadata.
		fnFilter, err := fnGetFilter(cfg.Log, cfg.FilterMetadata)
		if err != nil {
			raise(cfg.Name, err)
		}
		cfg.Log.Info(cfg.Name, " is running")
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
				data, err := fnFilter(rec)
				if err != nil {
					raise(cfg.Name, err)
				}
				if data.RecordIsNil() { // if the filter removed the record...
					if cfg.DroppedCount != nil {
						atomic.AddInt64(cfg.DroppedCount, 1)
					}
					continue
				}
				if recSentOK := safeSend(data, outputChan, controlChan, sendNilControlResponse); !recSentOK {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
			case controlAction := <-controlChan: // if we were asked to shutdown...
				sendNilControlResponse(controlAction)
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}

// setupJsonLogicFilter returns a filterFunc, which can be used to filter records using JSON Logic.
// Supply the JSON Logic rule as metadata input parameter.
// When called with a record, the filterFunc will return the data if the JSON Logic rule returns true,
// else it returns a nil record.
// In order to apply the JSON Logic, the filterFunc marshals the supplied data to JSON.
func setupJsonLogicFilter(log logger.Logger, metadata FilterMetadata) (filterFunc, error) {
	var result bytes.Buffer
	rule := string(metadata)
	if !jsonlogic.IsValid(strings.NewReader(rule)) {
		return nil, fmt.Errorf("invalid %v rule: %v", FilterRowsJsonLogic, metadata)
	}
	log.Debug(FilterRowsJsonLogic, " rule: ", rule)
	// Return the worker function.
	return func(data stream.Record) (stream.Record, error) {
		if !data.RecordIsNil() {
			result.Reset()
			if err := applyJsonLogic(data, rule, &result); err != nil {
				return stream.NewNilRecord(), err
			}
			if strings.TrimSpace(result.String()) == "true" {
				return data, nil
			}
		}
		return stream.NewNilRecord(), nil // return nil if data is nil.
	}, nil
}

// setupNotEmptyFilter returns a filterFunc that removes records whose field named by metadata is
// missing, nil or blank.
func setupNotEmptyFilter(log logger.Logger, metadata FilterMetadata) (filterFunc, error) {
	field := strings.TrimSpace(string(metadata))
	if field == "" {
		return nil, fmt.Errorf("missing field name for filter %v", FilterRowsNotEmpty)
	}
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			return data, nil
		}
		v, ok := data.Lookup(field)
		if !ok || v == nil {
			log.Trace(FilterRowsNotEmpty, " removed row without ", field)
			return stream.NewNilRecord(), nil
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			log.Trace(FilterRowsNotEmpty, " removed row with blank ", field)
			return stream.NewNilRecord(), nil
		}
		return data, nil
	}, nil
}

// applyJsonLogic will apply json logic supplied in rule to data.
// It assumes the caller has validated the logic already!
// Return any error found by marshaling data to json or applying json logic.
func applyJsonLogic(data stream.Record, rule string, result *bytes.Buffer) error {
	// Convert input data to json.
	jsonData, err := json.Marshal(data.GetDataMap())
	if err != nil {
		return fmt.Errorf("error marshalling data before applying JSON logic: %v", err)
	}
	jsr := strings.NewReader(string(jsonData))
	// Apply logic, returned via reference.
	logic := strings.NewReader(rule)
	err = jsonlogic.Apply(logic, jsr, result)
	if err != nil {
		return fmt.Errorf("error applying JSON logic: %v", err)
	}
	return nil
}
