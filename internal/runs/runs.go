// Package runs lists and submits workflow runs.
package runs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/omics/document"
	"github.com/aws/aws-sdk-go-v2/service/omics/types"
	"github.com/google/uuid"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/pkg/model"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultStorageCapacity is the static run storage requested in GiB.
	DefaultStorageCapacity = 9600
	// DefaultRoleName is the service role assumed when no role is given.
	DefaultRoleName = "OmicsFullAccessServiceRole"
)

// API is the subset of the omics client used here.
type API interface {
	ListRuns(ctx context.Context, params *omics.ListRunsInput, optFns ...func(*omics.Options)) (*omics.ListRunsOutput, error)
	StartRun(ctx context.Context, params *omics.StartRunInput, optFns ...func(*omics.Options)) (*omics.StartRunOutput, error)
}

// Service lists and starts runs.
type Service struct {
	Omics  API
	STS    awsclient.STSAPI // resolves the default role's account and partition
	Logger *slog.Logger
}

// New creates a Service.
func New(api API, stsClient awsclient.STSAPI, logger *slog.Logger) *Service {
	return &Service{Omics: api, STS: stsClient, Logger: logging.Component(logger, "runs")}
}

// Filter narrows a run listing. Zero values match everything.
type Filter struct {
	Name   string
	Status model.RunStatus
}

// List returns every run matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]model.RunSummary, error) {
	input := &omics.ListRunsInput{}
	if f.Name != "" {
		input.Name = aws.String(f.Name)
	}
	if f.Status != "" {
		input.Status = types.RunStatus(f.Status)
	}

	var out []model.RunSummary
	for {
		page, err := s.Omics.ListRuns(ctx, input)
		if err != nil {
			return nil, awsclient.Classify("list runs", err)
		}
		for _, it := range page.Items {
			out = append(out, summaryFromItem(it))
		}
		if aws.ToString(page.NextToken) == "" {
			break
		}
		input.StartingToken = page.NextToken
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreationTime.After(out[j].CreationTime)
	})
	return out, nil
}

func summaryFromItem(it types.RunListItem) model.RunSummary {
	s := model.RunSummary{
		ID:           aws.ToString(it.Id),
		Name:         aws.ToString(it.Name),
		WorkflowID:   aws.ToString(it.WorkflowId),
		Status:       model.RunStatus(it.Status),
		CreationTime: aws.ToTime(it.CreationTime),
		StartTime:    it.StartTime,
		StopTime:     it.StopTime,
	}
	if it.StorageCapacity != nil {
		n := int(*it.StorageCapacity)
		s.StorageCapacity = &n
	}
	return s
}

// StartRequest describes a run to submit.
type StartRequest struct {
	WorkflowID      string
	Name            string
	OutputURI       string
	RoleARN         string // defaults to the account's OmicsFullAccessServiceRole
	StorageCapacity int    // GiB; zero means DefaultStorageCapacity
	Parameters      map[string]any
	Tags            map[string]string
	RunGroupID      string
}

// Started is the identity of a submitted run.
type Started struct {
	ID     string          `json:"id"`
	ARN    string          `json:"arn"`
	Status model.RunStatus `json:"status"`
	Role   string          `json:"role_arn"`
}

// Start submits a run with full logging enabled.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Started, error) {
	logger := logging.OrDiscard(s.Logger)
	switch {
	case req.WorkflowID == "":
		return nil, model.NewValidationError("workflow id is required")
	case req.Name == "":
		return nil, model.NewValidationError("run name is required")
	case req.OutputURI == "":
		return nil, model.NewValidationError("output uri is required")
	case req.StorageCapacity < 0:
		return nil, model.NewValidationError("storage capacity must not be negative, got %d", req.StorageCapacity)
	}

	role := req.RoleARN
	if role == "" {
		if s.STS == nil {
			return nil, model.NewValidationError("role arn is required")
		}
		id, err := awsclient.CallerIdentity(ctx, s.STS)
		if err != nil {
			return nil, err
		}
		role = DefaultRoleARN(id.Partition, id.Account)
		logger.Info("no role provided, using default role", "role_arn", role)
	}
	capacity := req.StorageCapacity
	if capacity == 0 {
		capacity = DefaultStorageCapacity
	}
	tags := req.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	input := &omics.StartRunInput{
		WorkflowId:      aws.String(req.WorkflowID),
		Name:            aws.String(req.Name),
		RoleArn:         aws.String(role),
		OutputUri:       aws.String(req.OutputURI),
		StorageCapacity: aws.Int32(int32(capacity)),
		LogLevel:        types.RunLogLevelAll,
		Tags:            tags,
		RequestId:       aws.String(uuid.NewString()),
	}
	if req.Parameters != nil {
		input.Parameters = document.NewLazyDocument(req.Parameters)
	}
	if req.RunGroupID != "" {
		input.RunGroupId = aws.String(req.RunGroupID)
	}

	out, err := s.Omics.StartRun(ctx, input)
	if err != nil {
		return nil, awsclient.Classify("start run "+req.Name, err)
	}
	started := &Started{
		ID:     aws.ToString(out.Id),
		ARN:    aws.ToString(out.Arn),
		Status: model.RunStatus(out.Status),
		Role:   role,
	}
	logger.Info("run submitted", "run_id", started.ID, "workflow_id", req.WorkflowID,
		"run_group_id", req.RunGroupID, "tags", tags, "parameters", len(req.Parameters))
	return started, nil
}

// DefaultRoleARN is the default service role in account.
func DefaultRoleARN(partition, account string) string {
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", partition, account, DefaultRoleName)
}

// LoadParameters reads run parameters from a JSON or YAML file.
func LoadParameters(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}
	var params map[string]any
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("parse parameters %s: %w", path, err)
	}
	return params, nil
}

// ParseTags turns key=value pairs into a tag map.
func ParseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, model.NewValidationError("tag %q is not key=value", p)
		}
		tags[k] = strings.TrimSpace(v)
	}
	return tags, nil
}
