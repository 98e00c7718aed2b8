package cli

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	iamsdk "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/config"
	"github.com/me/omicsx/internal/iam"
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/internal/registry"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/internal/telemetry"
	"github.com/me/omicsx/internal/workflows"
)

// OmicsAPI is the part of the omics client the commands use.
type OmicsAPI interface {
	telemetry.API
	runs.API
	workflows.API
}

// Clients holds the AWS service clients for one invocation.
type Clients struct {
	Omics    OmicsAPI
	ECR      registry.ECRAPI
	IAM      iam.API
	STS      awsclient.STSAPI
	Uploader workflows.Uploader
	// Docker connects to the local daemon; only commands that push call it.
	Docker func() (registry.ImageClient, error)
}

// newClients builds the clients from cfg. Tests replace it.
var newClients = func(ctx context.Context, cfg config.Config) (*Clients, error) {
	awsCfg, err := awsclient.Load(ctx, awsclient.Options{
		Region:          cfg.Region,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		HTTPTimeout:     cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Clients{
		Omics:    omics.NewFromConfig(awsCfg),
		ECR:      ecr.NewFromConfig(awsCfg),
		IAM:      iamsdk.NewFromConfig(awsCfg),
		STS:      sts.NewFromConfig(awsCfg),
		Uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
		Docker: func() (registry.ImageClient, error) {
			c, err := registry.NewDockerClient()
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}, nil
}

var clients *Clients

func resetClients() {
	clients = nil
}

// awsClients returns the invocation's clients, creating them on first use so
// commands that never reach AWS do not need credentials.
func awsClients(ctx context.Context) (*Clients, error) {
	if clients != nil {
		return clients, nil
	}
	c, err := newClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	clients = c
	return c, nil
}

// pricingSource returns a fresh memoizing pricing source. Each command
// invocation gets its own, so nothing is cached across runs.
func pricingSource() pricing.Source {
	return pricing.NewCachingSource(pricing.NewLoader(cfg.Pricing.Endpoint, cfg.Pricing.Version, cfg.HTTPTimeout, logger))
}
