package components

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cevaris/ordered_map"
	"github.com/pkg/errors"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
)

type mapFieldMappers map[string]fieldMapperSetupFunc
type fieldMapperSetupFunc func(log logger.Logger, cfg map[string]string) (fieldMapperFunc, error)
type fieldMapperFunc func(data stream.Record) stream.Record

const (
	FieldMapperAddConstants = "AddConstants"
	FieldMapperRename       = "Rename"
)

var fieldMappers = mapFieldMappers{
	FieldMapperAddConstants: setupAddConstants,
	FieldMapperRename:       setupRename,
}

type FieldMapperConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Steps          []ComponentStep
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewFieldMapper uses FieldMapperConfig to map fields in records read from InputChan.
// Supply a slice of map step actions in cfg.Steps, where:
// Steps.Type is one of the entries in mapFieldMappers to lookup a map function.
// Steps.Data is a map of further config values to supply to the chosen map function.
func NewFieldMapper(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*FieldMapperConfig)
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
		// Setup all field mapper functions.
		mappers := make([]fieldMapperFunc, len(cfg.Steps))
		for idx, s := range cfg.Steps { // for each requested field mapper...
			setupMapperFunc, ok := fieldMappers[s.Type]
			if !ok {
				raisef(cfg.Name, "unable to find field mapper using name %q", s.Type)
			}
			var err error
			if mappers[idx], err = setupMapperFunc(cfg.Log, s.Data); err != nil {
				raise(cfg.Name, err)
			}
		}
		cfg.Log.Info(cfg.Name, " is running")
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				for idx := range mappers { // for each mapper function...
					rec = mappers[idx](rec)
				}
				if recSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !recSentOK {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
				atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
			case controlAction := <-controlChan: // if we were asked to shutdown...
				sendNilControlResponse(controlAction)
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}

// RenameStep builds a Rename ComponentStep from an ordered map of old field name to new field name.
func RenameStep(m *ordered_map.OrderedMap) ComponentStep {
	data := make(map[string]string, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		data[fmt.Sprint(kv.Key)] = fmt.Sprint(kv.Value)
	}
	return ComponentStep{Type: FieldMapperRename, Data: data}
}

// setupRename returns a fieldMapperFunc that renames fields using cfg as a map of old name to new name.
// Old names are matched exactly first and then ignoring case and surrounding space, as CSV headers vary.
// Fields that are not in cfg are kept as they are.
// A renamed field wins over an existing field of the same name.
func setupRename(log logger.Logger, cfg map[string]string) (fieldMapperFunc, error) {
	if len(cfg) == 0 {
		return nil, fmt.Errorf("missing field mapper configuration; please supply %v with one or more old:new field names", FieldMapperRename)
	}
	folded := make(map[string]string, len(cfg))
	for from, to := range cfg {
		if strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("missing new field name for %q in %v", from, FieldMapperRename)
		}
		k := strings.ToLower(strings.TrimSpace(from))
		if prior, ok := folded[k]; ok && prior != to {
			return nil, fmt.Errorf("ambiguous %v: %q maps to both %q and %q", FieldMapperRename, from, prior, to)
		}
		folded[k] = to
	}
	return func(data stream.Record) stream.Record {
		if data.RecordIsNil() {
			return data
		}
		out := make(map[string]interface{}, data.GetDataLen())
		renamed := make(map[string]string)
		for k, v := range data.GetDataMap() {
			to, ok := cfg[k]
			if !ok {
				to, ok = folded[strings.ToLower(strings.TrimSpace(k))]
			}
			if ok && to != k { // if the field is renamed...
				renamed[k] = to
				continue
			}
			out[k] = v
		}
		// Apply renames in a fixed order so duplicates resolve the same way on every row.
		from := make([]string, 0, len(renamed))
		for k := range renamed {
			from = append(from, k)
		}
		sort.Strings(from)
		for _, k := range from {
			out[renamed[k]] = data.GetData(k)
		}
		if len(renamed) > 0 {
			log.Trace("renamed fields: ", renamed)
		}
		return stream.NewRecordFromMap(out)
	}, nil
}

// setupAddConstants returns a fieldMapperFunc that sets fieldName to fieldValue on every record.
// fieldType is one of string, integer or date (YYYY-MM-DD or RFC3339).
func setupAddConstants(log logger.Logger, cfg map[string]string) (fn fieldMapperFunc, err error) {
	errBuilder := strings.Builder{}
	// Assert all input config has been supplied.
	fieldType, ok := cfg["fieldType"]
	if !ok {
		errBuilder.WriteString("fieldType, ")
	}
	fieldName, ok := cfg["fieldName"]
	if !ok {
		errBuilder.WriteString("fieldName, ")
	}
	fieldValString, ok := cfg["fieldValue"]
	if !ok {
		errBuilder.WriteString("fieldValue, ")
	}
	if errBuilder.Len() > 0 {
		return nil, fmt.Errorf("missing field mapper configuration; please supply %v with: %v", FieldMapperAddConstants, strings.TrimRight(errBuilder.String(), ", "))
	}
	if !helper.IsValidIdentifier(fieldName) {
		return nil, fmt.Errorf("invalid field name %q supplied to %v", fieldName, FieldMapperAddConstants)
	}
	// Assert the fieldType is OK.
	var fieldValue interface{}
	switch fieldType {
	case "integer":
		if fieldValue, err = strconv.Atoi(fieldValString); err != nil {
			return nil, errors.Wrapf(err, "bad integer for %v", fieldName)
		}
	case "string":
		fieldValue = fieldValString
	case "date":
		d, err := time.Parse(c.TimeFormatDate, fieldValString)
		if err != nil { // if it is not a plain date...
			if d, err = time.Parse(time.RFC3339, fieldValString); err != nil {
				return nil, errors.Wrapf(err, "bad date for %v", fieldName)
			}
		}
		fieldValue = d.UTC()
	default:
		return nil, fmt.Errorf("unsupported fieldType supplied to %v, %v. supported types are 'string', 'integer', 'date' (use YYYY-MM-DD or RFC3339)", FieldMapperAddConstants, fieldType)
	}
	log.Debug(FieldMapperAddConstants, " will set ", fieldName, " = ", fieldValue)
	return func(data stream.Record) stream.Record {
		if !data.RecordIsNil() {
			data.SetData(fieldName, fieldValue)
		}
		return data
	}, nil
}
