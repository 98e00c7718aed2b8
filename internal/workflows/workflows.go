// Package workflows registers Nextflow workflows with the workflow service
// and lists the ones already registered.
package workflows

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/omics/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/bundle"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/nextflow"
	"github.com/me/omicsx/pkg/model"
)

const (
	// DefaultMain is the entry point used when none is given.
	DefaultMain = "main.nf"
	// InlineLimit is the largest definition sent inline with the create call.
	InlineLimit = 4 << 20
	// DefaultWaitTimeout bounds the wait for a new workflow to become active.
	DefaultWaitTimeout = 30 * time.Minute
)

// API is the subset of the omics client used here.
type API interface {
	CreateWorkflow(ctx context.Context, params *omics.CreateWorkflowInput, optFns ...func(*omics.Options)) (*omics.CreateWorkflowOutput, error)
	GetWorkflow(ctx context.Context, params *omics.GetWorkflowInput, optFns ...func(*omics.Options)) (*omics.GetWorkflowOutput, error)
	ListWorkflows(ctx context.Context, params *omics.ListWorkflowsInput, optFns ...func(*omics.Options)) (*omics.ListWorkflowsOutput, error)
}

// Uploader stages large definitions in object storage.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Service creates and lists workflows.
type Service struct {
	Omics       API
	Uploader    Uploader // required only for definitions over InlineLimit
	Logger      *slog.Logger
	WaitTimeout time.Duration
	InlineLimit int // zero means InlineLimit
}

// New creates a Service.
func New(api API, uploader Uploader, logger *slog.Logger) *Service {
	return &Service{
		Omics:       api,
		Uploader:    uploader,
		Logger:      logging.Component(logger, "workflows"),
		WaitTimeout: DefaultWaitTimeout,
	}
}

// CreateRequest describes a workflow to register.
type CreateRequest struct {
	Dir         string
	Name        string
	Description string // defaults to Name
	Main        string // defaults to DefaultMain
	// StagingURI is an s3://bucket/prefix location for definitions too
	// large to send inline.
	StagingURI string
	Ignore     []string
	NoWait     bool
}

// Create packages req.Dir, registers it and waits until it is active.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.WorkflowSummary, error) {
	logger := logging.OrDiscard(s.Logger)
	if req.Name == "" {
		return nil, model.NewValidationError("workflow name is required")
	}
	if req.Dir == "" {
		return nil, model.NewValidationError("workflow directory is required")
	}
	if req.Description == "" {
		req.Description = req.Name
	}
	if req.Main == "" {
		req.Main = DefaultMain
	}

	params, err := nextflow.ParameterTemplate(req.Dir)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	b, err := bundle.Bundle(req.Dir, bundle.Options{Ignore: req.Ignore})
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	logger.Info("workflow bundled", "dir", req.Dir, "files", len(b.Files), "bytes", len(b.Zip))

	input := &omics.CreateWorkflowInput{
		Name:              aws.String(req.Name),
		Description:       aws.String(req.Description),
		Main:              aws.String(req.Main),
		Engine:            types.WorkflowEngineNextflow,
		ParameterTemplate: parameterTemplate(params),
		RequestId:         aws.String(uuid.NewString()),
	}

	limit := s.InlineLimit
	if limit <= 0 {
		limit = InlineLimit
	}
	if len(b.Zip) > limit {
		uri, err := s.stage(ctx, req, b.Zip, limit)
		if err != nil {
			return nil, err
		}
		input.DefinitionUri = aws.String(uri)
		logger.Info("definition staged", "uri", uri)
	} else {
		input.DefinitionZip = b.Zip
	}

	out, err := s.Omics.CreateWorkflow(ctx, input)
	if err != nil {
		return nil, awsclient.Classify("create workflow "+req.Name, err)
	}
	id := aws.ToString(out.Id)
	logger.Info("workflow created", "workflow_id", id, "status", out.Status)

	if !req.NoWait {
		timeout := s.WaitTimeout
		if timeout <= 0 {
			timeout = DefaultWaitTimeout
		}
		waiter := omics.NewWorkflowActiveWaiter(s.Omics)
		if err := waiter.Wait(ctx, &omics.GetWorkflowInput{Id: aws.String(id)}, timeout); err != nil {
			logger.Warn("workflow did not become active", "workflow_id", id, "error", err)
		} else {
			logger.Info("workflow ready for use", "workflow_id", id)
		}
	}

	wf, err := s.Omics.GetWorkflow(ctx, &omics.GetWorkflowInput{Id: aws.String(id)})
	if err != nil {
		return nil, awsclient.Classify("get workflow "+id, err)
	}
	return &model.WorkflowSummary{
		ID:           aws.ToString(wf.Id),
		Name:         aws.ToString(wf.Name),
		Status:       string(wf.Status),
		Type:         string(wf.Type),
		Digest:       aws.ToString(wf.Digest),
		CreationTime: aws.ToTime(wf.CreationTime),
	}, nil
}

func (s *Service) stage(ctx context.Context, req CreateRequest, data []byte, limit int) (string, error) {
	if req.StagingURI == "" {
		return "", model.NewValidationError("workflow bundle is %d bytes, over the %d byte inline limit; a staging URI is required", len(data), limit)
	}
	if s.Uploader == nil {
		return "", model.NewValidationError("no uploader configured for staging")
	}
	bucket, prefix, err := ParseS3URI(req.StagingURI)
	if err != nil {
		return "", err
	}
	key := path.Join(prefix, req.Name+".zip")
	_, err = s.Uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", awsclient.Classify("upload workflow definition", err)
	}
	return "s3://" + bucket + "/" + key, nil
}

// ParseS3URI splits s3://bucket/prefix into its bucket and key prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", model.NewValidationError("invalid s3 uri %q", uri)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func parameterTemplate(params map[string]nextflow.Parameter) map[string]types.WorkflowParameter {
	out := make(map[string]types.WorkflowParameter, len(params))
	for name, p := range params {
		out[name] = types.WorkflowParameter{
			Description: aws.String(p.Description),
			Optional:    aws.Bool(p.Optional),
		}
	}
	return out
}

// List returns every workflow visible to the caller, oldest first. A
// non-empty name narrows the listing to that name.
func (s *Service) List(ctx context.Context, name string) ([]model.WorkflowSummary, error) {
	input := &omics.ListWorkflowsInput{}
	if name != "" {
		input.Name = aws.String(name)
	}

	var out []model.WorkflowSummary
	for {
		page, err := s.Omics.ListWorkflows(ctx, input)
		if err != nil {
			return nil, awsclient.Classify("list workflows", err)
		}
		for _, it := range page.Items {
			out = append(out, model.WorkflowSummary{
				ID:           aws.ToString(it.Id),
				Name:         aws.ToString(it.Name),
				Status:       string(it.Status),
				Type:         string(it.Type),
				Digest:       aws.ToString(it.Digest),
				CreationTime: aws.ToTime(it.CreationTime),
			})
		}
		if aws.ToString(page.NextToken) == "" {
			break
		}
		input.StartingToken = page.NextToken
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreationTime.Before(out[j].CreationTime)
	})
	return out, nil
}
