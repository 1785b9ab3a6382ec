package dms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/databasemigrationservice"
	"github.com/aws/aws-sdk-go/service/databasemigrationservice/databasemigrationserviceiface"
	"github.com/pkg/errors"
)

// Starter starts an existing replication task.
type Starter interface {
	StartTask(ctx context.Context, taskArn string, startType string) (*databasemigrationservice.StartReplicationTaskOutput, error)
}

func NewStarter(region string) (Starter, error) {
	awsConfig := aws.NewConfig()
	if region != "" {
		awsConfig.Region = aws.String(region)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error creating AWS session")
	}
	return NewStarterWithAPI(databasemigrationservice.New(sess)), nil
}

func NewStarterWithAPI(api databasemigrationserviceiface.DatabaseMigrationServiceAPI) Starter {
	return &starter{api: api}
}

type starter struct {
	api databasemigrationserviceiface.DatabaseMigrationServiceAPI
}

var startTypes = []string{
	databasemigrationservice.StartReplicationTaskTypeValueStartReplication,
	databasemigrationservice.StartReplicationTaskTypeValueResumeProcessing,
	databasemigrationservice.StartReplicationTaskTypeValueReloadTarget,
}

// IsValidStartType returns true if t is one of the start types accepted by the replication service.
func IsValidStartType(t string) bool {
	for _, v := range startTypes {
		if v == t {
			return true
		}
	}
	return false
}

// StartTask calls the replication service once and returns its raw response.
// There are no retries.
func (s *starter) StartTask(ctx context.Context, taskArn string, startType string) (*databasemigrationservice.StartReplicationTaskOutput, error) {
	if taskArn == "" {
		return nil, fmt.Errorf("replication task ARN is required")
	}
	if !IsValidStartType(startType) {
		return nil, fmt.Errorf("unsupported replication start type %q", startType)
	}
	out, err := s.api.StartReplicationTaskWithContext(ctx, &databasemigrationservice.StartReplicationTaskInput{
		ReplicationTaskArn:       aws.String(taskArn),
		StartReplicationTaskType: aws.String(startType),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error starting replication task %v", taskArn)
	}
	return out, nil
}
