package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/config"
	c "github.com/relloyd/casepipe/constants"
	"github.com/relloyd/casepipe/logger"
	"github.com/relloyd/casepipe/transform"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseEtl struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Result  *EtlResult        `json:"result,omitempty"`
}

type ResponseReplication struct {
	Status  WebServerResponse  `json:"status"`
	Message string             `json:"message"`
	Result  *ReplicationResult `json:"result,omitempty"`
}

type ResponseRunStatus struct {
	Status WebServerResponse                    `json:"status"`
	Runs   map[string]transform.TransformStatus `json:"runs"`
}

// RequestEtl is the optional JSON body of POST /etl/{mode}.
type RequestEtl struct {
	RunDate string `json:"runDate"` // YYYY-MM-DD; defaults to today.
}

// RequestReplication is the optional JSON body of POST /replication/start.
type RequestReplication struct {
	TaskArn   string `json:"taskArn"`
	StartType string `json:"startType"`
}

// JobContextFactory builds the JobContext for one request.
type JobContextFactory func(ctx context.Context, runDate time.Time) (*JobContext, error)

// JobHandlers serves the job endpoints.
// Only one run of each command may be active at a time.
type JobHandlers struct {
	log           logger.Logger
	jobCfg        *config.JobConfig
	newJobContext JobContextFactory
	mu            sync.Mutex
	runs          map[string]*transform.TransformStatus
}

func NewJobHandlers(log logger.Logger, jobCfg *config.JobConfig, fn JobContextFactory) *JobHandlers {
	return &JobHandlers{log: log, jobCfg: jobCfg, newJobContext: fn, runs: make(map[string]*transform.TransformStatus)}
}

// startRun marks the named run as running and returns false if it is already running.
func (h *JobHandlers) startRun(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.runs[name]; ok && !s.TransformIsFinished() {
		return false
	}
	h.runs[name] = &transform.TransformStatus{StartTime: time.Now(), Status: transform.StatusRunning}
	return true
}

func (h *JobHandlers) endRun(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.runs[name]
	s.EndTime = time.Now()
	if err != nil {
		s.Status = transform.StatusCompleteWithError
		s.Error = err.Error()
	} else {
		s.Status = transform.StatusComplete
	}
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // if a stop is already pending...
		}
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

// GetHandlerEtl runs the load for the mode in the URL and responds with the EtlResult.
// No new files is a successful run.
func (h *JobHandlers) GetHandlerEtl() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := ParseMode(mux.Vars(r)["mode"])
		if err != nil {
			h.logAndRespond(w, http.StatusBadRequest, err, ResponseEtl{Status: Error, Message: err.Error()})
			return
		}
		req := RequestEtl{}
		if err = decodeOptionalBody(r, &req); err != nil {
			h.logAndRespond(w, http.StatusBadRequest, err, ResponseEtl{Status: Error, Message: err.Error()})
			return
		}
		runDate := time.Time{}
		if req.RunDate != "" {
			if runDate, err = time.Parse(c.TimeFormatDate, req.RunDate); err != nil {
				h.logAndRespond(w, http.StatusBadRequest, err, ResponseEtl{Status: Error, Message: fmt.Sprintf("bad runDate: %v", err)})
				return
			}
		}
		etlCfg, err := NewEtlConfig(h.jobCfg)
		if err != nil {
			h.logAndRespond(w, http.StatusInternalServerError, err, ResponseEtl{Status: Error, Message: err.Error()})
			return
		}
		if !h.startRun(c.ActionFuncsCommandEtl) {
			w.WriteHeader(http.StatusConflict)
			respond(h.log, w, ResponseEtl{Status: Error, Message: "a load is already running"})
			return
		}
		res, err := h.runEtl(r.Context(), etlCfg, mode, runDate)
		if errors.Cause(err) == ErrNoNewFiles { // if there was nothing to do...
			err = nil
		}
		h.endRun(c.ActionFuncsCommandEtl, err)
		if err != nil {
			h.logAndRespond(w, http.StatusInternalServerError, err, ResponseEtl{Status: Error, Message: err.Error(), Result: res})
			return
		}
		msg := "load complete"
		if res.NoNewFiles {
			msg = ErrNoNewFiles.Error()
		}
		w.WriteHeader(http.StatusOK)
		respond(h.log, w, ResponseEtl{Status: Okay, Message: msg, Result: res})
	}
}

func (h *JobHandlers) runEtl(ctx context.Context, cfg *EtlConfig, mode Mode, runDate time.Time) (*EtlResult, error) {
	jc, err := h.newJobContext(ctx, runDate)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := jc.Close(); err != nil {
			h.log.Warn("error closing catalog: ", err)
		}
	}()
	return RunEtl(ctx, jc, cfg, mode)
}

// GetHandlerReplicationStart starts the replication task and responds with its reported status.
func (h *JobHandlers) GetHandlerReplicationStart() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		req := RequestReplication{}
		if err := decodeOptionalBody(r, &req); err != nil {
			h.logAndRespond(w, http.StatusBadRequest, err, ResponseReplication{Status: Error, Message: err.Error()})
			return
		}
		jobCfg := *h.jobCfg // copy so request overrides don't leak into later requests.
		if req.StartType != "" {
			jobCfg.Replication.ReplicationStartType = req.StartType
		}
		cfg, err := NewReplicationConfig(&jobCfg, req.TaskArn)
		if err != nil {
			h.logAndRespond(w, http.StatusBadRequest, err, ResponseReplication{Status: Error, Message: err.Error()})
			return
		}
		if !h.startRun(c.ActionFuncsCommandReplicate) {
			w.WriteHeader(http.StatusConflict)
			respond(h.log, w, ResponseReplication{Status: Error, Message: "a replication start is already in progress"})
			return
		}
		res, err := h.runReplication(r.Context(), cfg)
		h.endRun(c.ActionFuncsCommandReplicate, err)
		if err != nil {
			h.logAndRespond(w, http.StatusBadGateway, err, ResponseReplication{Status: Error, Message: err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(h.log, w, ResponseReplication{Status: Okay, Message: "replication task started", Result: res})
	}
}

func (h *JobHandlers) runReplication(ctx context.Context, cfg *ReplicationConfig) (*ReplicationResult, error) {
	jc, err := h.newJobContext(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := jc.Close(); err != nil {
			h.log.Warn("error closing catalog: ", err)
		}
	}()
	return RunReplicationTask(ctx, jc, cfg)
}

// GetHandlerStatus lists the latest run of each command.
func (h *JobHandlers) GetHandlerStatus() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		runs := make(map[string]transform.TransformStatus)
		h.mu.Lock()
		for k, v := range h.runs {
			runs[k] = *v
		}
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		respond(h.log, w, ResponseRunStatus{Status: Okay, Runs: runs})
	}
}

// decodeOptionalBody unmarshals a JSON body into i if one was sent.
func decodeOptionalBody(r *http.Request, i interface{}) error {
	if r.Body == nil {
		return nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, "error reading request body")
	}
	if len(b) == 0 {
		return nil
	}
	if err = json.Unmarshal(b, i); err != nil {
		return errors.Wrap(err, "error unmarshalling JSON")
	}
	return nil
}

// logAndRespond will log the error, write the status code and r to w.
func (h *JobHandlers) logAndRespond(w http.ResponseWriter, code int, err error, r interface{}) {
	h.log.Error(err)
	w.WriteHeader(code)
	respond(h.log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Error(err)
	}
}
