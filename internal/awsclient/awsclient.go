// Package awsclient builds the SDK configuration shared by every service
// client and classifies SDK errors into the model error taxonomy.
package awsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/me/omicsx/pkg/model"
)

// Options selects the region, profile and credentials for a session.
type Options struct {
	Region  string
	Profile string // empty uses the default credential chain

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// HTTPTimeout bounds every API call. Zero leaves the SDK default.
	HTTPTimeout time.Duration
}

// Load resolves an aws.Config for opts.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}
	if opts.HTTPTimeout > 0 {
		loadOpts = append(loadOpts, config.WithHTTPClient(
			awshttp.NewBuildableClient().WithTimeout(opts.HTTPTimeout),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// DefaultPartition is used when the caller identity carries no parsable ARN.
const DefaultPartition = "aws"

// Identity is the account and partition of the calling principal.
type Identity struct {
	Account   string
	Partition string // "aws", "aws-us-gov", "aws-cn"
}

// CallerIdentity resolves the calling principal. The partition is taken from
// the caller ARN so downstream ARNs are valid outside the commercial regions.
func CallerIdentity(ctx context.Context, client STSAPI) (Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, Classify("get caller identity", err)
	}
	if out.Account == nil || *out.Account == "" {
		return Identity{}, model.NewBackendError("get caller identity", errors.New("account is empty"))
	}
	id := Identity{Account: *out.Account, Partition: DefaultPartition}
	if parsed, err := arn.Parse(aws.ToString(out.Arn)); err == nil && parsed.Partition != "" {
		id.Partition = parsed.Partition
	}
	return id, nil
}

// AccountID returns the account of the calling identity.
func AccountID(ctx context.Context, client STSAPI) (string, error) {
	id, err := CallerIdentity(ctx, client)
	if err != nil {
		return "", err
	}
	return id.Account, nil
}

// notFoundCodes are the service error codes that mean "no such resource".
var notFoundCodes = map[string]bool{
	"ResourceNotFoundException":   true,
	"RepositoryNotFoundException": true,
	"NoSuchEntity":                true,
	"NoSuchEntityException":       true,
	"NotFoundException":           true,
}

// ErrorCode returns the service error code of err, or "" if err is not an API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsNotFound reports whether err is a "no such resource" API error.
func IsNotFound(err error) bool {
	return notFoundCodes[ErrorCode(err)]
}

// Classify wraps err as BACKEND_ERROR, naming the operation and the service
// error code when there is one. Errors that are already classified pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != "" {
		return err
	}
	if code := ErrorCode(err); code != "" {
		return model.NewBackendError(fmt.Sprintf("%s (%s)", op, code), err)
	}
	return model.NewBackendError(op, err)
}
