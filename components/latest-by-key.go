package components

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
)

type LatestByKeyConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	KeyField       string      // business key; rows with no key are dropped.
	KeyType        td.DataType // optional declared type of KeyField; keys are compared after casting to it.
	RecencyField   string      // timestamp field; the latest value per key wins.
	PartitionField string      // optional tie-breaker; defaults to partition_date.
	DroppedCount   *int64      // optional count of rows dropped for having no key.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// latestCandidate is the best row seen so far for a key.
type latestCandidate struct {
	rec       stream.Record
	ts        time.Time
	tsOK      bool
	partition int64
	seq       int64
}

// newerThan orders rows by recency timestamp, then partition, then arrival.
// Rows whose timestamp could not be parsed rank below all parsed timestamps.
func (l *latestCandidate) newerThan(o *latestCandidate) bool {
	if l.tsOK != o.tsOK {
		return l.tsOK
	}
	if l.tsOK && !l.ts.Equal(o.ts) {
		return l.ts.After(o.ts)
	}
	if l.partition != o.partition {
		return l.partition > o.partition
	}
	return l.seq > o.seq
}

// NewLatestByKey keeps the most recent row per KeyField and outputs the survivors, sorted by key,
// once InputChan is closed.
// Rows are ranked by RecencyField, then by PartitionField, then by arrival order so that
// later rows win ties.
func NewLatestByKey(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*LatestByKeyConfig)
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
		if cfg.KeyField == "" || cfg.RecencyField == "" {
			raisef(cfg.Name, "missing key field or recency field")
		}
		if cfg.PartitionField == "" {
			cfg.PartitionField = c.ColumnPartitionDate
		}
		cfg.Log.Info(cfg.Name, " is running")
		latest := make(map[string]*latestCandidate)
		seq := int64(0)
		unparsed := 0
		for input := true; input; { // while there are rows to rank...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					input = false
					break
				}
				seq++
				key := rankKey(rec, cfg.KeyField, cfg.KeyType)
				if key == "" { // if there is no business key...
					if cfg.DroppedCount != nil {
						atomic.AddInt64(cfg.DroppedCount, 1)
					}
					continue
				}
				cand := &latestCandidate{rec: rec, seq: seq}
				if v, ok := rec.Lookup(cfg.RecencyField); ok {
					if ts, err := td.CastValue(v, td.TypeTimestamp); err == nil && ts != nil {
						cand.ts = ts.(time.Time)
						cand.tsOK = true
					}
				}
				if !cand.tsOK {
					unparsed++
				}
				if v, ok := rec.Lookup(cfg.PartitionField); ok {
					if p, err := td.CastValue(v, td.TypeBigint); err == nil && p != nil {
						cand.partition = p.(int64)
					}
				}
				if prior, found := latest[key]; !found || cand.newerThan(prior) {
					latest[key] = cand
				}
			case controlAction := <-controlChan: // if we were asked to shutdown...
				sendNilControlResponse(controlAction)
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
		if unparsed > 0 {
			cfg.Log.Warn(cfg.Name, " found ", unparsed, " rows with a missing or unparseable ", cfg.RecencyField, "; they rank below dated rows")
		}
		keys := make([]string, 0, len(latest))
		for k := range latest {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys { // for each surviving row...
			if recSentOK := safeSend(latest[k].rec, outputChan, controlChan, sendNilControlResponse); !recSentOK {
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
			atomic.AddInt64(&rowCount, 1)
		}
		cfg.Log.Info(cfg.Name, " kept ", len(keys), " of ", seq, " rows")
		cfg.Log.Info(cfg.Name, " complete")
	}()
	return
}

// rankKey returns the grouping key for rec.
// If keyType is set the value is cast first, so "007" and "7" are the same bigint key.
// Values that do not cast are grouped by their trimmed text.
func rankKey(rec stream.Record, field string, keyType td.DataType) string {
	v, ok := rec.Lookup(field)
	if !ok || v == nil {
		return ""
	}
	if keyType != "" && keyType != td.TypeString {
		if cv, err := td.CastValue(v, keyType); err == nil && cv != nil {
			v = cv
		}
	}
	s, err := helper.GetStringFromInterface(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
