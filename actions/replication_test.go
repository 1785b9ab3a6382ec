package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/databasemigrationservice"
	"github.com/relloyd/casepipe/config"
	. "github.com/onsi/gomega"
)

type fakeStarter struct {
	arns       []string
	startTypes []string
	err        error
}

func (f *fakeStarter) StartTask(ctx context.Context, taskArn string, startType string) (*databasemigrationservice.StartReplicationTaskOutput, error) {
	f.arns = append(f.arns, taskArn)
	f.startTypes = append(f.startTypes, startType)
	if f.err != nil {
		return nil, f.err
	}
	return &databasemigrationservice.StartReplicationTaskOutput{
		ReplicationTask: &databasemigrationservice.ReplicationTask{
			ReplicationTaskArn: aws.String(taskArn),
			Status:             aws.String("starting"),
		},
	}, nil
}

func replicationJobConfig() *config.JobConfig {
	return &config.JobConfig{
		Path:      "test.yaml",
		AwsRegion: "eu-west-2",
		Replication: config.ReplicationSettings{
			ReplicationTaskArn:   "arn:aws:dms:eu-west-2:123:task:cases",
			ReplicationStartType: "start-replication",
		},
	}
}

func TestRunReplicationTaskStartsTaskOnce(t *testing.T) {
	g := NewGomegaWithT(t)
	s := &fakeStarter{}
	jc := &JobContext{Log: testLogger(), RunID: "r1", Replication: s}
	cfg, err := NewReplicationConfig(replicationJobConfig(), "")
	g.Expect(err).To(BeNil())
	res, err := RunReplicationTask(context.Background(), jc, cfg)
	g.Expect(err).To(BeNil())
	g.Expect(s.arns).To(Equal([]string{"arn:aws:dms:eu-west-2:123:task:cases"}))
	g.Expect(s.startTypes).To(Equal([]string{"start-replication"}))
	g.Expect(res.TaskStatus).To(Equal("starting"))
	g.Expect(res.RunID).To(Equal("r1"))
}

func TestRunReplicationTaskArnOverride(t *testing.T) {
	g := NewGomegaWithT(t)
	s := &fakeStarter{}
	jc := &JobContext{Log: testLogger(), Replication: s}
	cfg, err := NewReplicationConfig(replicationJobConfig(), "arn:other")
	g.Expect(err).To(BeNil())
	_, err = RunReplicationTask(context.Background(), jc, cfg)
	g.Expect(err).To(BeNil())
	g.Expect(s.arns).To(Equal([]string{"arn:other"}))
}

func TestRunReplicationTaskPropagatesFailure(t *testing.T) {
	g := NewGomegaWithT(t)
	s := &fakeStarter{err: errors.New("task is already running")}
	jc := &JobContext{Log: testLogger(), Replication: s}
	_, err := RunReplicationTask(context.Background(), jc, &ReplicationConfig{TaskArn: "arn:task"})
	g.Expect(err).To(MatchError(ContainSubstring("already running")))
	g.Expect(s.arns).To(HaveLen(1))
}

func TestReplicationConfigValidation(t *testing.T) {
	g := NewGomegaWithT(t)
	jobCfg := replicationJobConfig()
	jobCfg.Replication.ReplicationTaskArn = ""
	_, err := NewReplicationConfig(jobCfg, "")
	g.Expect(err).NotTo(BeNil())
	cfg := &ReplicationConfig{TaskArn: "arn:task", StartType: "restart"}
	g.Expect(cfg.Validate()).NotTo(Succeed())
	cfg = &ReplicationConfig{TaskArn: "arn:task"}
	g.Expect(cfg.Validate()).To(Succeed())
	g.Expect(cfg.StartType).To(Equal("start-replication"))
}

func TestRunReplicationTaskWithoutClient(t *testing.T) {
	g := NewGomegaWithT(t)
	_, err := RunReplicationTask(context.Background(), &JobContext{Log: testLogger()}, &ReplicationConfig{TaskArn: "arn:task"})
	g.Expect(err).NotTo(BeNil())
}
