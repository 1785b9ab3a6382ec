package components

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/file"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
)

var errReaderShutdown = errors.New("reader shutdown")

type CsvObjectReaderConfig struct {
	Log                    logger.Logger
	Name                   string
	Ctx                    context.Context
	Store                  file.ObjectStore
	InputChan              chan stream.Record // records produced by NewObjectListInput.
	InputField4FileName    string             // defaults to Defaults.ChanField4FileName
	InputField4PartitionID string             // defaults to Defaults.ChanField4PartitionID
	Delimiter              rune               // defaults to a comma.
	// PartitionFromColumns computes the partition identifier from year, month and day fields in each row
	// and falls back to the identifier in the file path when the fields are missing or unusable.
	PartitionFromColumns    bool
	OutputField4PartitionID string // defaults to partition_date
	FilesRead               *int64 // optional count of files read.
	RowsRead                *int64 // optional count of rows output.
	StepWatcher             *stats.StepWatcher
	WaitCounter             ComponentWaiter
	PanicHandlerFn          PanicHandlerFunc
}

// NewCsvObjectReader reads every object named on cfg.InputChan as delimited text with a header row.
// One record is output per data row with string values keyed by header name, plus the partition identifier.
// Rows are output in file order, so downstream steps can treat arrival order as load order.
func NewCsvObjectReader(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*CsvObjectReaderConfig)
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
		if cfg.Store == nil {
			raisef(cfg.Name, "missing object store")
		}
		if cfg.InputField4FileName == "" {
			cfg.InputField4FileName = Defaults.ChanField4FileName
		}
		if cfg.InputField4PartitionID == "" {
			cfg.InputField4PartitionID = Defaults.ChanField4PartitionID
		}
		if cfg.OutputField4PartitionID == "" {
			cfg.OutputField4PartitionID = c.ColumnPartitionDate
		}
		if cfg.Delimiter == 0 {
			cfg.Delimiter = c.SourceCsvDelimiter
		}
		ctx := cfg.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		cfg.Log.Info(cfg.Name, " is running")
		var controlAction ControlAction
		for { // for each file...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				key, err := helper.GetStringFromInterface(rec.GetData(cfg.InputField4FileName))
				if err != nil {
					raise(cfg.Name, err)
				}
				pathID, _ := rec.GetData(cfg.InputField4PartitionID).(int)
				data, err := cfg.Store.Get(ctx, key)
				if err != nil {
					raise(cfg.Name, errors.Wrapf(err, "unable to read %v", key))
				}
				cfg.Log.Debug(cfg.Name, " reading ", key, " (", len(data), " bytes)")
				_, err = file.ReadCSV(data, cfg.Delimiter, file.IsGzipKey(key), func(row stream.Record) error {
					id := pathID
					if cfg.PartitionFromColumns {
						if colID, ok := partitionIDFromColumns(row); ok { // if the row carries its own date...
							id = colID
						}
					}
					row.SetData(cfg.OutputField4PartitionID, id)
					if recSentOK := safeSend(row, outputChan, controlChan, sendNilControlResponse); !recSentOK {
						return errReaderShutdown
					}
					atomic.AddInt64(&rowCount, 1)
					if cfg.RowsRead != nil {
						atomic.AddInt64(cfg.RowsRead, 1)
					}
					return nil
				})
				if errors.Cause(err) == errReaderShutdown {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
				if err != nil {
					raise(cfg.Name, errors.Wrapf(err, "unable to parse %v", key))
				}
				if cfg.FilesRead != nil {
					atomic.AddInt64(cfg.FilesRead, 1)
				}
			case controlAction = <-controlChan: // if we were asked to shutdown...
				sendNilControlResponse(controlAction)
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}

// partitionIDFromColumns builds the partition identifier from the year, month and day fields of rec.
func partitionIDFromColumns(rec stream.Record) (int, bool) {
	var parts [3]string
	for idx, name := range []string{c.ColumnYear, c.ColumnMonth, c.ColumnDay} {
		v, ok := rec.Lookup(name)
		if !ok || v == nil {
			return 0, false
		}
		s, err := helper.GetStringFromInterface(v)
		if err != nil {
			return 0, false
		}
		parts[idx] = s
	}
	return partitionID(parts[0], parts[1], parts[2])
}
