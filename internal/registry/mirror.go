package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/nextflow"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel repository setup.
const DefaultConcurrency = 4

// Options configures a mirror pass.
type Options struct {
	Account    string
	Region     string
	Namespaces map[string]string
	// Push pulls, tags and pushes each image after its repository is ready.
	Push        bool
	Concurrency int
}

// Result is the outcome for one source image.
type Result struct {
	Source     string `json:"source"`
	Repository string `json:"repository"`
	Target     string `json:"target"`
	Created    bool   `json:"created"`
	Pushed     bool   `json:"pushed"`
	Error      string `json:"error,omitempty"`
}

// Mirror copies workflow images into private repositories.
type Mirror struct {
	ECR    ECRAPI
	Docker ImageClient // required when pushing
	Logger *slog.Logger
}

// NewMirror creates a Mirror.
func NewMirror(api ECRAPI, docker ImageClient, logger *slog.Logger) *Mirror {
	return &Mirror{ECR: api, Docker: docker, Logger: logging.Component(logger, "registry")}
}

// Run prepares a private repository for every image and, with opts.Push,
// copies the image into it. Results follow the order of images. Per-image
// failures are recorded in the result; the returned error is kept for
// failures that stop the whole pass.
func (m *Mirror) Run(ctx context.Context, images []string, opts Options) ([]Result, error) {
	logger := logging.OrDiscard(m.Logger)
	if opts.Account == "" || opts.Region == "" {
		return nil, fmt.Errorf("mirror: account and region are required")
	}
	if opts.Push && m.Docker == nil {
		return nil, fmt.Errorf("mirror: pushing requires a docker client")
	}

	results := make([]Result, len(images))
	for i, uri := range images {
		results[i].Source = uri
		img, err := nextflow.ParseImage(uri)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Repository = nextflow.PrivateRepoName(img, opts.Namespaces)
		results[i].Target = nextflow.PrivateImageURI(img, opts.Account, opts.Region, opts.Namespaces)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range results {
		if results[i].Error != "" {
			continue
		}
		i := i
		g.Go(func() error {
			repo := results[i].Repository
			created, err := EnsureRepository(gctx, m.ECR, repo)
			if err != nil {
				results[i].Error = err.Error()
				logger.Error("repository setup failed", "repository", repo, "error", err)
				return nil
			}
			if created {
				logger.Info("repository created", "repository", repo)
			} else {
				logger.Info("repository already exists", "repository", repo)
			}
			if err := ApplyServicePolicy(gctx, m.ECR, repo); err != nil {
				logger.Warn("unable to apply repository policy", "repository", repo, "error", err)
			}
			results[i].Created = created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	if !opts.Push {
		return results, nil
	}

	creds, err := Login(ctx, m.ECR)
	if err != nil {
		return results, err
	}
	auth, err := EncodeAuth(creds)
	if err != nil {
		return results, fmt.Errorf("encode registry auth: %w", err)
	}
	for i := range results {
		if results[i].Error != "" {
			continue
		}
		if err := m.push(ctx, results[i].Source, results[i].Target, auth, logger); err != nil {
			results[i].Error = err.Error()
			logger.Error("push failed", "image", results[i].Target, "error", err)
			continue
		}
		results[i].Pushed = true
		logger.Info("image pushed", "image", results[i].Target)
	}
	return results, nil
}

func (m *Mirror) push(ctx context.Context, source, target, auth string, logger *slog.Logger) error {
	progress := func(msg jsonmessage.JSONMessage) {
		logger.Debug(msg.Status, "id", msg.ID)
	}

	// The image may already be present locally, so a failed pull is not fatal.
	if rc, err := m.Docker.ImagePull(ctx, source, types.ImagePullOptions{}); err != nil {
		logger.Warn("error pulling image", "image", source, "error", err)
	} else if err := drain(rc, progress); err != nil {
		logger.Warn("error pulling image", "image", source, "error", err)
	}

	if err := m.Docker.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("tag %s: %w", source, err)
	}
	logger.Info("pushing image", "image", target)
	rc, err := m.Docker.ImagePush(ctx, target, types.ImagePushOptions{RegistryAuth: auth})
	if err != nil {
		return fmt.Errorf("push %s: %w", target, err)
	}
	if err := drain(rc, progress); err != nil {
		return fmt.Errorf("push %s: %w", target, err)
	}
	return nil
}
