package actions

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/components"
	"github.com/relloyd/casepipe/config"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/file"
	"github.com/relloyd/casepipe/helper"
	"github.com/relloyd/casepipe/rdbms"
	"github.com/relloyd/casepipe/stats"
	"github.com/relloyd/casepipe/stream"
	td "github.com/relloyd/casepipe/table-definition"
	"github.com/relloyd/casepipe/transform"
)

// ErrNoNewFiles is returned by RunEtl when there are no source files to load.
// Nothing is written in that case and callers should treat it as a clean exit.
var ErrNoNewFiles = errors.New("no new files")

type EtlConfig struct {
	SourcePath        string `errorTxt:"source path" mandatory:"yes"`
	CsvOutputPath     string `errorTxt:"csv output path" mandatory:"yes"`
	ParquetOutputPath string `errorTxt:"parquet output path" mandatory:"yes"`
	TargetTable       string `errorTxt:"target table" mandatory:"yes"` // database.table of the materialized table.
	CastFailurePolicy string `errorTxt:"cast failure policy" oneOf:"null|fail"`
	RowFilter         string // optional JSON logic rule applied after renaming.
	Columns           td.TableColumns
}

// NewEtlConfig builds an EtlConfig from the etl settings of the job config file.
func NewEtlConfig(jobCfg *config.JobConfig) (*EtlConfig, error) {
	if err := jobCfg.ValidateEtl(); err != nil {
		return nil, err
	}
	s := jobCfg.Etl
	cols, err := tableColumnsFromConfig(s)
	if err != nil {
		return nil, errors.Wrapf(err, "bad columns in config file %v", jobCfg.Path)
	}
	rule, err := jobCfg.RowFilterJSON()
	if err != nil {
		return nil, err
	}
	st := rdbms.NewSchemaTable(s.TargetDatabase, s.TargetTable)
	cfg := &EtlConfig{
		SourcePath:        s.SourcePath,
		CsvOutputPath:     s.CsvOutputPath,
		ParquetOutputPath: s.ParquetOutputPath,
		TargetTable:       st.String(),
		CastFailurePolicy: s.CastFailurePolicy,
		RowFilter:         rule,
		Columns:           cols,
	}
	return cfg, cfg.Validate()
}

func tableColumnsFromConfig(s config.EtlSettings) (td.TableColumns, error) {
	if len(s.Columns) == 0 { // if the built-in case mapping should be used...
		cols := td.BuiltInCaseColumns()
		if s.BusinessKey == "" && s.RecencyColumn == "" {
			return cols, nil
		}
		key, recency := cols.BusinessKey, cols.RecencyColumn
		if s.BusinessKey != "" {
			key = s.BusinessKey
		}
		if s.RecencyColumn != "" {
			recency = s.RecencyColumn
		}
		return td.NewTableColumns(cols.Columns, key, recency)
	}
	cols := make([]td.TableColumn, 0, len(s.Columns))
	for _, col := range s.Columns {
		t, err := td.ParseDataType(col.Type)
		if err != nil {
			return td.TableColumns{}, err
		}
		cols = append(cols, td.TableColumn{Source: col.Source, Target: col.Target, Type: t})
	}
	return td.NewTableColumns(cols, s.BusinessKey, s.RecencyColumn)
}

func (cfg *EtlConfig) Validate() error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	st := rdbms.SchemaTable{SchemaTable: cfg.TargetTable}
	if err := st.Validate(); err != nil {
		return err
	}
	if err := cfg.validateLocations(); err != nil {
		return err
	}
	return cfg.Columns.Validate()
}

// validateLocations rejects outputs that would be deleted or overwritten by another output,
// and outputs whose directory holds the source files.
func (cfg *EtlConfig) validateLocations() error {
	src, err := file.ParseLocation(cfg.SourcePath)
	if err != nil {
		return errors.Wrap(err, "bad source path")
	}
	csvLoc, err := file.ParseLocation(cfg.CsvOutputPath)
	if err != nil {
		return errors.Wrap(err, "bad csv output path")
	}
	pqLoc, err := file.ParseLocation(cfg.ParquetOutputPath)
	if err != nil {
		return errors.Wrap(err, "bad parquet output path")
	}
	if csvLoc.Contains(pqLoc) || pqLoc.Contains(csvLoc) {
		return fmt.Errorf("csv output %v and parquet output %v must not be the same or nested", csvLoc, pqLoc)
	}
	for _, out := range []file.Location{csvLoc, pqLoc} {
		if out.Contains(src) {
			return fmt.Errorf("output %v must not contain the source path %v", out, src)
		}
	}
	return nil
}

// EtlResult summarises a run.
type EtlResult struct {
	RunID              string        `json:"runId"`
	Mode               Mode          `json:"mode"`
	RunDate            string        `json:"runDate"`
	NoNewFiles         bool          `json:"noNewFiles"`
	MaxPartitionBefore int           `json:"maxPartitionBefore"`
	MaxPartitionAfter  int           `json:"maxPartitionAfter"`
	FilesRead          int64         `json:"filesRead"`
	FilesSkipped       int64         `json:"filesSkipped"`
	RowsRead           int64         `json:"rowsRead"`
	RowsFiltered       int64         `json:"rowsFiltered"`
	RowsMissingKey     int64         `json:"rowsMissingKey"`
	RowsNew            int           `json:"rowsNew"`
	RowsExisting       int           `json:"rowsExisting"`
	RowsWritten        int           `json:"rowsWritten"`
	CastFailures       int64         `json:"castFailures"`
	CsvOutputKey       string        `json:"csvOutputKey,omitempty"`
	ParquetOutputKey   string        `json:"parquetOutputKey,omitempty"`
	Steps              []stats.Stats `json:"steps,omitempty"`
}

func (r *EtlResult) String() string {
	return fmt.Sprintf("mode=%v files=%v rows read=%v filtered=%v missing key=%v new=%v existing=%v written=%v cast failures=%v partition %v -> %v",
		r.Mode, r.FilesRead, r.RowsRead, r.RowsFiltered, r.RowsMissingKey, r.RowsNew, r.RowsExisting, r.RowsWritten, r.CastFailures,
		r.MaxPartitionBefore, r.MaxPartitionAfter)
}

// RunEtl loads source CSV partitions into the materialized table outputs.
// FULL reads every partition and replaces the outputs with the latest row per business key.
// DELTA reads only partitions newer than MAX(partition_date) in the catalog, unions the new rows with
// the existing table and ranks them again so one row per business key remains.
// If there are no files to load, ErrNoNewFiles is returned and nothing is written.
func RunEtl(ctx context.Context, jc *JobContext, cfg *EtlConfig, mode Mode) (*EtlResult, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := jc.Log
	res := &EtlResult{RunID: jc.RunID, Mode: mode, RunDate: jc.RunDate.Format(c.TimeFormatDate)}
	srcLoc, err := file.ParseLocation(cfg.SourcePath)
	if err != nil {
		return nil, errors.Wrap(err, "bad source path")
	}
	csvLoc, err := file.ParseLocation(cfg.CsvOutputPath)
	if err != nil {
		return nil, errors.Wrap(err, "bad csv output path")
	}
	pqLoc, err := file.ParseLocation(cfg.ParquetOutputPath)
	if err != nil {
		return nil, errors.Wrap(err, "bad parquet output path")
	}
	srcStore, err := jc.OpenStore(srcLoc)
	if err != nil {
		return nil, err
	}
	log.Info("Starting ", mode, " load of ", srcLoc, " for ", cfg.TargetTable, " with run date ", res.RunDate)
	// Find the last partition loaded.
	if mode == ModeDelta {
		if jc.Catalog == nil {
			return nil, errors.New("a catalog is required for a delta load")
		}
		max, found, err := jc.Catalog.MaxPartitionID(ctx, cfg.TargetTable)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading max %v", c.ColumnPartitionDate)
		}
		if !found { // if the table is empty or missing...
			log.Warn("No ", c.ColumnPartitionDate, " found in ", cfg.TargetTable, "; loading all partitions")
		}
		res.MaxPartitionBefore = max
	}
	// Load, rank and cast the new rows.
	newRows, err := loadNewRows(ctx, jc, cfg, mode, srcStore, srcLoc, res)
	if err != nil {
		return res, err
	}
	if res.FilesRead == 0 { // if there was nothing to load...
		log.Info("No new files found under ", srcLoc, " after partition ", res.MaxPartitionBefore)
		res.NoNewFiles = true
		return res, ErrNoNewFiles
	}
	res.RowsNew = len(newRows)
	final := newRows
	// Reconcile with the materialized table.
	if mode == ModeDelta {
		existing, err := jc.Catalog.ReadAll(ctx, cfg.TargetTable, cfg.Columns)
		if err != nil {
			return res, errors.Wrapf(err, "error reading %v", cfg.TargetTable)
		}
		res.RowsExisting = len(existing)
		if final, err = reconcile(ctx, jc, cfg, existing, newRows, res); err != nil {
			return res, err
		}
	}
	res.RowsWritten = len(final)
	res.MaxPartitionAfter = maxPartitionID(final, res.MaxPartitionBefore)
	// Persist both outputs.
	if res.CsvOutputKey, err = writeOutput(ctx, jc, csvLoc, func(store file.ObjectStore) (string, error) {
		return file.WriteCSVOutput(ctx, log, store, csvLoc, cfg.Columns, final)
	}); err != nil {
		return res, err
	}
	if res.ParquetOutputKey, err = writeOutput(ctx, jc, pqLoc, func(store file.ObjectStore) (string, error) {
		return file.WriteParquetOutput(ctx, log, store, pqLoc, cfg.Columns, final)
	}); err != nil {
		return res, err
	}
	log.Info("Load complete: ", res.String())
	return res, nil
}

func writeOutput(ctx context.Context, jc *JobContext, loc file.Location, fn func(store file.ObjectStore) (string, error)) (string, error) {
	store, err := jc.OpenStore(loc)
	if err != nil {
		return "", err
	}
	key, err := fn(store)
	if err != nil {
		return "", errors.Wrapf(err, "error writing %v", loc)
	}
	return key, nil
}

// loadNewRows runs list -> read -> rename -> filter -> rank -> stamp -> cast over the source partitions.
func loadNewRows(ctx context.Context, jc *JobContext, cfg *EtlConfig, mode Mode, store file.ObjectStore, srcLoc file.Location, res *EtlResult) ([]stream.Record, error) {
	log := jc.Log
	t := transform.NewTransform(ctx, log, "load")
	log.Debug("started transform load with id ", t.Guid())
	var filesRead, filesSkipped, rowsRead, rowsFiltered, rowsMissingKey, castFailures int64
	files := launch(t, "list source files", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewObjectListInput(&components.ObjectListInputConfig{
			Log: log, Name: s.Name, Ctx: ctx, Store: store, Location: srcLoc,
			FilterByPartition: mode == ModeDelta,
			MinPartitionID:    res.MaxPartitionBefore,
			SkippedCount:      &filesSkipped,
			StepWatcher:       s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows := launch(t, "read source files", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewCsvObjectReader(&components.CsvObjectReaderConfig{
			Log: log, Name: s.Name, Ctx: ctx, Store: store, InputChan: files,
			PartitionFromColumns: mode == ModeFull,
			FilesRead:            &filesRead,
			RowsRead:             &rowsRead,
			StepWatcher:          s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows = launch(t, "rename columns", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewFieldMapper(&components.FieldMapperConfig{
			Log: log, Name: s.Name, InputChan: rows,
			Steps:       []components.ComponentStep{components.RenameStep(cfg.Columns.RenameMap())},
			StepWatcher: s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	if strings.TrimSpace(cfg.RowFilter) != "" {
		rows = launch(t, "filter rows", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
			return components.NewFilterRows(&components.FilterRowsConfig{
				Log: log, Name: s.Name, InputChan: rows,
				FilterType:     components.FilterRowsJsonLogic,
				FilterMetadata: components.FilterMetadata(cfg.RowFilter),
				DroppedCount:   &rowsFiltered,
				StepWatcher:    s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
			})
		})
	}
	rows = launch(t, "drop rows without key", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewFilterRows(&components.FilterRowsConfig{
			Log: log, Name: s.Name, InputChan: rows,
			FilterType:     components.FilterRowsNotEmpty,
			FilterMetadata: components.FilterMetadata(cfg.Columns.BusinessKey),
			DroppedCount:   &rowsMissingKey,
			StepWatcher:    s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows = launchRanker(t, jc, cfg, rows, "keep latest row per key", &rowsMissingKey)
	rows = launch(t, "stamp load date", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewFieldMapper(&components.FieldMapperConfig{
			Log: log, Name: s.Name, InputChan: rows,
			Steps: []components.ComponentStep{{Type: components.FieldMapperAddConstants, Data: map[string]string{
				"fieldName":  c.ColumnLoadDate,
				"fieldType":  "date",
				"fieldValue": jc.RunDate.Format(c.TimeFormatDate),
			}}},
			StepWatcher: s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows = launchCaster(t, jc, cfg, rows, "cast columns", &castFailures)
	out := collect(rows)
	err := t.Wait()
	res.FilesRead += atomic.LoadInt64(&filesRead)
	res.FilesSkipped += atomic.LoadInt64(&filesSkipped)
	res.RowsRead += atomic.LoadInt64(&rowsRead)
	res.RowsFiltered += atomic.LoadInt64(&rowsFiltered)
	res.RowsMissingKey += atomic.LoadInt64(&rowsMissingKey)
	res.CastFailures += atomic.LoadInt64(&castFailures)
	res.Steps = append(res.Steps, t.GetStats()...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading source files")
	}
	return out, nil
}

// reconcile unions the existing table with the new rows, existing first, then ranks and casts again.
func reconcile(ctx context.Context, jc *JobContext, cfg *EtlConfig, existing []stream.Record, newRows []stream.Record, res *EtlResult) ([]stream.Record, error) {
	log := jc.Log
	t := transform.NewTransform(ctx, log, "reconcile")
	log.Debug("started transform reconcile with id ", t.Guid())
	var rowsMissingKey, castFailures int64
	chanExisting := launch(t, "existing rows", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewRecordsInput(&components.RecordsInputConfig{
			Log: log, Name: s.Name, Records: existing,
			StepWatcher: s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	chanNew := launch(t, "new rows", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewRecordsInput(&components.RecordsInputConfig{
			Log: log, Name: s.Name, Records: newRows,
			StepWatcher: s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows := launch(t, "union", func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewChannelCombiner(&components.ChannelCombinerConfig{
			Log: log, Name: s.Name, Chan1: chanExisting, Chan2: chanNew,
			StepWatcher: s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
	rows = launchRanker(t, jc, cfg, rows, "keep latest row per key after union", &rowsMissingKey)
	rows = launchCaster(t, jc, cfg, rows, "cast merged columns", &castFailures)
	out := collect(rows)
	err := t.Wait()
	res.RowsMissingKey += atomic.LoadInt64(&rowsMissingKey)
	res.CastFailures += atomic.LoadInt64(&castFailures)
	res.Steps = append(res.Steps, t.GetStats()...)
	if err != nil {
		return nil, errors.Wrap(err, "error merging with existing rows")
	}
	return out, nil
}

func launchRanker(t *transform.Transform, jc *JobContext, cfg *EtlConfig, input chan stream.Record, name string, dropped *int64) chan stream.Record {
	return launch(t, name, func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewLatestByKey(&components.LatestByKeyConfig{
			Log: jc.Log, Name: s.Name, InputChan: input,
			KeyField:       cfg.Columns.BusinessKey,
			KeyType:        cfg.Columns.BusinessKeyType(),
			RecencyField:   cfg.Columns.RecencyColumn,
			PartitionField: c.ColumnPartitionDate,
			DroppedCount:   dropped,
			StepWatcher:    s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
}

func launchCaster(t *transform.Transform, jc *JobContext, cfg *EtlConfig, input chan stream.Record, name string, failures *int64) chan stream.Record {
	return launch(t, name, func(s transform.Step) (chan stream.Record, chan components.ControlAction) {
		return components.NewCaster(&components.CasterConfig{
			Log: jc.Log, Name: s.Name, InputChan: input,
			Columns:       cfg.Columns,
			FailurePolicy: cfg.CastFailurePolicy,
			CastFailures:  failures,
			StepWatcher:   s.StepWatcher, WaitCounter: s.WaitCounter, PanicHandlerFn: s.PanicHandlerFn,
		})
	})
}

// launch registers a step with the transform and starts it.
func launch(t *transform.Transform, name string, fn func(s transform.Step) (chan stream.Record, chan components.ControlAction)) chan stream.Record {
	s := t.NewStep(name)
	out, ctl := fn(s)
	t.AddControl(name, ctl)
	return out
}

// collect materializes the rows on ch.
func collect(ch chan stream.Record) []stream.Record {
	rows := make([]stream.Record, 0)
	for rec := range ch {
		rows = append(rows, rec)
	}
	return rows
}

func maxPartitionID(rows []stream.Record, floor int) int {
	max := floor
	for _, r := range rows {
		if v, ok := r.Lookup(c.ColumnPartitionDate); ok {
			if id, isInt := v.(int32); isInt && int(id) > max {
				max = int(id)
			}
		}
	}
	return max
}
