package actions

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/databasemigrationservice"
	"github.com/pkg/errors"
	"github.com/relloyd/casepipe/aws/dms"
	"github.com/relloyd/casepipe/config"
	"github.com/relloyd/casepipe/helper"
)

type ReplicationConfig struct {
	TaskArn   string `errorTxt:"replication task ARN" mandatory:"yes"`
	StartType string `errorTxt:"replication start type" mandatory:"yes"`
}

// NewReplicationConfig builds a ReplicationConfig from the job config file.
// A non-empty taskArn overrides the file.
func NewReplicationConfig(jobCfg *config.JobConfig, taskArn string) (*ReplicationConfig, error) {
	if taskArn != "" {
		jobCfg.Replication.ReplicationTaskArn = taskArn
	}
	if err := jobCfg.ValidateReplication(); err != nil {
		return nil, err
	}
	cfg := &ReplicationConfig{
		TaskArn:   jobCfg.Replication.ReplicationTaskArn,
		StartType: jobCfg.Replication.ReplicationStartType,
	}
	return cfg, cfg.Validate()
}

func (cfg *ReplicationConfig) Validate() error {
	if cfg.StartType == "" {
		cfg.StartType = databasemigrationservice.StartReplicationTaskTypeValueStartReplication
	}
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if !dms.IsValidStartType(cfg.StartType) {
		return errors.Errorf("unsupported replication start type %q", cfg.StartType)
	}
	return nil
}

// ReplicationResult is the status reported by the replication service after the start request.
type ReplicationResult struct {
	RunID      string `json:"runId"`
	TaskArn    string `json:"taskArn"`
	StartType  string `json:"startType"`
	TaskStatus string `json:"taskStatus"`
}

// RunReplicationTask asks the replication service to start the configured task and logs the response.
// It does not wait for the task to finish.
func RunReplicationTask(ctx context.Context, jc *JobContext, cfg *ReplicationConfig) (*ReplicationResult, error) {
	if jc.Replication == nil {
		return nil, errors.New("missing replication client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	jc.Log.Info("Starting replication task ", cfg.TaskArn, " with start type ", cfg.StartType)
	out, err := jc.Replication.StartTask(ctx, cfg.TaskArn, cfg.StartType)
	if err != nil {
		return nil, err
	}
	res := &ReplicationResult{RunID: jc.RunID, TaskArn: cfg.TaskArn, StartType: cfg.StartType}
	if out != nil && out.ReplicationTask != nil {
		res.TaskStatus = aws.StringValue(out.ReplicationTask.Status)
	}
	jc.Log.Info("Replication task response: ", out)
	return res, nil
}
