// Package telemetry retrieves a run and all of its tasks from the workflow
// service and derives their elapsed durations from one clock snapshot.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/omics/types"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/pkg/model"
)

// DefaultMaxTasks caps task pagination for one run.
const DefaultMaxTasks = 100000

// API is the subset of the omics client the fetcher calls.
type API interface {
	GetRun(ctx context.Context, params *omics.GetRunInput, optFns ...func(*omics.Options)) (*omics.GetRunOutput, error)
	ListRunTasks(ctx context.Context, params *omics.ListRunTasksInput, optFns ...func(*omics.Options)) (*omics.ListRunTasksOutput, error)
}

// Fetcher builds model.Execution values. It holds no state between calls.
type Fetcher struct {
	API      API
	Now      func() time.Time // nil means time.Now
	MaxTasks int              // zero means DefaultMaxTasks
	Logger   *slog.Logger
}

// NewFetcher creates a Fetcher using the wall clock.
func NewFetcher(api API, maxTasks int, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		API:      api,
		MaxTasks: maxTasks,
		Logger:   logging.Component(logger, "telemetry"),
	}
}

// Fetch retrieves run id and every task page, in service order.
func (f *Fetcher) Fetch(ctx context.Context, id string) (*model.Execution, error) {
	logger := logging.OrDiscard(f.Logger)
	now := f.now()

	run, err := f.API.GetRun(ctx, &omics.GetRunInput{Id: aws.String(id)})
	if err != nil {
		if isNotFound(err) {
			return nil, model.NewExecutionNotFound(id, err)
		}
		return nil, awsclient.Classify("get run "+id, err)
	}

	items, err := f.listTasks(ctx, id, logger)
	if err != nil {
		return nil, err
	}

	exec := &model.Execution{
		ID:              aws.ToString(run.Id),
		Name:            aws.ToString(run.Name),
		WorkflowID:      aws.ToString(run.WorkflowId),
		Status:          model.RunStatus(run.Status),
		StorageCapacity: intPtr(run.StorageCapacity),
		CreationTime:    aws.ToTime(run.CreationTime),
		StartTime:       aws.ToTime(run.StartTime),
		StopTime:        run.StopTime,
		Tasks:           make([]model.Task, 0, len(items)),
		SnapshotTime:    now,
	}
	if exec.ID == "" {
		exec.ID = id
	}
	if exec.StorageCapacity != nil && *exec.StorageCapacity < 0 {
		return nil, model.NewBackendError("get run "+id, fmt.Errorf("negative storage capacity %d", *exec.StorageCapacity))
	}
	exec.Duration = elapsed(run.StartTime, run.StopTime, now)

	for _, it := range items {
		exec.Tasks = append(exec.Tasks, taskFromItem(it, now))
	}

	logger.Debug("run fetched", "run_id", id, "status", exec.Status, "tasks", len(exec.Tasks), "duration", exec.Duration)
	return exec, nil
}

// listTasks follows the cursor until the service stops returning one.
func (f *Fetcher) listTasks(ctx context.Context, id string, logger *slog.Logger) ([]types.TaskListItem, error) {
	limit := f.MaxTasks
	if limit <= 0 {
		limit = DefaultMaxTasks
	}

	var items []types.TaskListItem
	var token *string
	for page := 1; ; page++ {
		out, err := f.API.ListRunTasks(ctx, &omics.ListRunTasksInput{
			Id:            aws.String(id),
			StartingToken: token,
		})
		if err != nil {
			if isNotFound(err) {
				return nil, model.NewExecutionNotFound(id, err)
			}
			return nil, awsclient.Classify("list run tasks "+id, err)
		}
		items = append(items, out.Items...)
		if len(items) > limit {
			return nil, model.NewPaginationOverflow(id, limit)
		}
		logger.Debug("task page fetched", "run_id", id, "page", page, "items", len(out.Items))

		if aws.ToString(out.NextToken) == "" {
			return items, nil
		}
		token = out.NextToken
	}
}

func (f *Fetcher) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func taskFromItem(it types.TaskListItem, now time.Time) model.Task {
	name := aws.ToString(it.Name)
	return model.Task{
		ID:     aws.ToString(it.TaskId),
		Name:   name,
		Short:  shortName(name),
		Status: model.TaskStatus(it.Status),
		Resources: model.Resources{
			CPUs:      int(aws.ToInt32(it.Cpus)),
			MemoryGiB: int(aws.ToInt32(it.Memory)),
			GPUs:      int(aws.ToInt32(it.Gpus)),
		},
		InstanceType: aws.ToString(it.InstanceType),
		CreationTime: aws.ToTime(it.CreationTime),
		StartTime:    aws.ToTime(it.StartTime),
		StopTime:     it.StopTime,
		Duration:     elapsed(it.StartTime, it.StopTime, now),
	}
}

// elapsed returns stop-start, or now-start when stop is nil. now is moved
// into start's location first. A missing start (not yet started) and clock
// skew both yield zero.
func elapsed(start, stop *time.Time, now time.Time) time.Duration {
	if start == nil || start.IsZero() {
		return 0
	}
	end := now.In(start.Location())
	if stop != nil && !stop.IsZero() {
		end = *stop
	}
	d := end.Sub(*start)
	if d < 0 {
		return 0
	}
	return d
}

// shortName returns the process part of a fully qualified task name such as
// "NFCORE_RNASEQ:RNASEQ:FASTQC (sample1)".
func shortName(name string) string {
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return true
	}
	return awsclient.IsNotFound(err)
}
