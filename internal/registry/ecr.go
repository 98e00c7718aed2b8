// Package registry mirrors workflow container images into the account's
// private registry so the workflow service can pull them.
package registry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/pkg/model"
)

// ServicePolicy lets the workflow service pull images from a repository.
const ServicePolicy = `{
    "Version": "2012-10-17",
    "Statement": [
        {
            "Sid": "omics workflow",
            "Effect": "Allow",
            "Principal": {
                "Service": "omics.amazonaws.com"
            },
            "Action": [
                "ecr:GetDownloadUrlForLayer",
                "ecr:BatchGetImage",
                "ecr:BatchCheckLayerAvailability"
            ]
        }
    ]
}`

// ECRAPI is the subset of the ECR client used here.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepository(ctx context.Context, params *ecr.CreateRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	SetRepositoryPolicy(ctx context.Context, params *ecr.SetRepositoryPolicyInput, optFns ...func(*ecr.Options)) (*ecr.SetRepositoryPolicyOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// EnsureRepository creates repository name unless it already exists. It
// reports whether the repository was created.
func EnsureRepository(ctx context.Context, api ECRAPI, name string) (bool, error) {
	_, err := api.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}})
	if err == nil {
		return false, nil
	}
	var nf *types.RepositoryNotFoundException
	if !errors.As(err, &nf) && !awsclient.IsNotFound(err) {
		return false, awsclient.Classify("describe repository "+name, err)
	}

	if _, err := api.CreateRepository(ctx, &ecr.CreateRepositoryInput{RepositoryName: aws.String(name)}); err != nil {
		var exists *types.RepositoryAlreadyExistsException
		if errors.As(err, &exists) {
			return false, nil
		}
		return false, awsclient.Classify("create repository "+name, err)
	}
	return true, nil
}

// ApplyServicePolicy replaces the repository policy with ServicePolicy.
func ApplyServicePolicy(ctx context.Context, api ECRAPI, name string) error {
	_, err := api.SetRepositoryPolicy(ctx, &ecr.SetRepositoryPolicyInput{
		RepositoryName: aws.String(name),
		PolicyText:     aws.String(ServicePolicy),
		Force:          true,
	})
	if err != nil {
		return awsclient.Classify("set repository policy "+name, err)
	}
	return nil
}

// Credentials authenticate against the private registry.
type Credentials struct {
	Username      string
	Password      string
	ProxyEndpoint string
}

// ServerAddress is the registry host without scheme.
func (c Credentials) ServerAddress() string {
	s := strings.TrimPrefix(c.ProxyEndpoint, "https://")
	return strings.TrimPrefix(s, "http://")
}

// Login exchanges the caller's identity for registry credentials.
func Login(ctx context.Context, api ECRAPI) (Credentials, error) {
	out, err := api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, awsclient.Classify("get authorization token", err)
	}
	if len(out.AuthorizationData) == 0 {
		return Credentials{}, model.NewBackendError("get authorization token", errors.New("no authorization data returned"))
	}
	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return Credentials{}, model.NewBackendError("decode authorization token", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Credentials{}, model.NewBackendError("decode authorization token", fmt.Errorf("token is not user:password"))
	}
	return Credentials{Username: user, Password: pass, ProxyEndpoint: aws.ToString(data.ProxyEndpoint)}, nil
}
