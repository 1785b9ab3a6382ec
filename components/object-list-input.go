package components

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/file"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
)

var partitionRegexp = regexp.MustCompile(`(?:^|/)year=(\d{4})/month=(\d{1,2})/day=(\d{1,2})/`)

// PartitionIDFromPath returns the YYYYMMDD partition identifier found in the year=/month=/day= segments of p.
// ok is false if p does not contain a valid partition path.
func PartitionIDFromPath(p string) (id int, ok bool) {
	m := partitionRegexp.FindStringSubmatch(p)
	if m == nil {
		return 0, false
	}
	return partitionID(m[1], m[2], m[3])
}

func partitionID(year, month, day string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return 0, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}
	id := y*10000 + m*100 + d
	if _, err = time.Parse(c.PartitionIdFormat, fmt.Sprintf("%08d", id)); err != nil { // if the day is not in the month...
		return 0, false
	}
	return id, true
}

type ObjectListInputConfig struct {
	Log                     logger.Logger
	Name                    string
	Ctx                     context.Context
	Store                   file.ObjectStore
	Location                file.Location // directory holding the year=/month=/day= partitions.
	FileSuffix              string        // defaults to .csv
	MinPartitionID          int           // only files with a partition identifier greater than this are output when FilterByPartition is set.
	FilterByPartition       bool
	OutputField4FileName    string // defaults to Defaults.ChanField4FileName
	OutputField4PartitionID string // defaults to Defaults.ChanField4PartitionID
	SkippedCount            *int64 // optional count of files excluded because their path has no partition.
	StepWatcher             *stats.StepWatcher
	WaitCounter             ComponentWaiter
	PanicHandlerFn          PanicHandlerFunc
}

// NewObjectListInput lists the objects under cfg.Location and produces one record per partitioned source file
// in key order, where each record has:
// OutputField4FileName = the object key
// OutputField4PartitionID = the YYYYMMDD partition identifier (int) parsed from the key
// Objects whose keys have no year=/month=/day= segments are logged and skipped.
func NewObjectListInput(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*ObjectListInputConfig)
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
		if cfg.StepWatcher != nil { // if we have been given a StepWatcher struct that can watch our rowCount...
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		if cfg.Store == nil {
			raisef(cfg.Name, "missing object store")
		}
		if cfg.FileSuffix == "" {
			cfg.FileSuffix = c.SourceFileExtension
		}
		if cfg.OutputField4FileName == "" {
			cfg.OutputField4FileName = Defaults.ChanField4FileName
		}
		if cfg.OutputField4PartitionID == "" {
			cfg.OutputField4PartitionID = Defaults.ChanField4PartitionID
		}
		ctx := cfg.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		cfg.Log.Info(cfg.Name, " is running for ", cfg.Location)
		prefix := cfg.Location.Key
		if prefix != "" {
			prefix = cfg.Location.AsDir().Key
		}
		keys, err := cfg.Store.List(ctx, prefix)
		if err != nil {
			raise(cfg.Name, err)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !strings.HasSuffix(strings.ToLower(k), cfg.FileSuffix) { // if this is not a source file...
				cfg.Log.Trace(cfg.Name, " skipped object without suffix ", cfg.FileSuffix, ": ", k)
				continue
			}
			id, ok := PartitionIDFromPath(k)
			if !ok { // if the path has no usable partition...
				cfg.Log.Warn(cfg.Name, " skipped file with unknown partition: ", k)
				if cfg.SkippedCount != nil {
					atomic.AddInt64(cfg.SkippedCount, 1)
				}
				continue
			}
			if cfg.FilterByPartition && id <= cfg.MinPartitionID { // if the partition was loaded already...
				cfg.Log.Debug(cfg.Name, " skipped file in partition ", id, ": ", k)
				continue
			}
			rec := stream.NewRecord()
			rec.SetData(cfg.OutputField4FileName, k)
			rec.SetData(cfg.OutputField4PartitionID, id)
			if recSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !recSentOK {
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
			atomic.AddInt64(&rowCount, 1)
		}
		cfg.Log.Info(cfg.Name, " complete")
	}()
	return
}
