// Package iam provisions the service role and policies the workflow service
// needs to read inputs, write outputs and publish logs.
package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsdk "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/logging"
)

// Names of the provisioned resources.
const (
	RoleName        = "OmicsFullAccessServiceRole"
	RoleDescription = "HealthOmics service role"
	S3PolicyName    = "OmicsS3FullAccess"
	LogsPolicyName  = "OmicsLogsFullAccess"
)

const (
	servicePrincipal = "omics.amazonaws.com"
	workflowLogGroup = "/aws/omics/WorkflowLog"
	policyVersion    = "2012-10-17"
)

// API is the subset of the IAM client used here.
type API interface {
	GetRole(ctx context.Context, params *iamsdk.GetRoleInput, optFns ...func(*iamsdk.Options)) (*iamsdk.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iamsdk.CreateRoleInput, optFns ...func(*iamsdk.Options)) (*iamsdk.CreateRoleOutput, error)
	GetPolicy(ctx context.Context, params *iamsdk.GetPolicyInput, optFns ...func(*iamsdk.Options)) (*iamsdk.GetPolicyOutput, error)
	CreatePolicy(ctx context.Context, params *iamsdk.CreatePolicyInput, optFns ...func(*iamsdk.Options)) (*iamsdk.CreatePolicyOutput, error)
	AttachRolePolicy(ctx context.Context, params *iamsdk.AttachRolePolicyInput, optFns ...func(*iamsdk.Options)) (*iamsdk.AttachRolePolicyOutput, error)
}

type policyDocument struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

type statement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    any               `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
}

// TrustPolicy lets the workflow service assume the role.
func TrustPolicy() string {
	return mustJSON(policyDocument{
		Version: policyVersion,
		Statement: []statement{{
			Effect:    "Allow",
			Principal: map[string]string{"Service": servicePrincipal},
			Action:    "sts:AssumeRole",
		}},
	})
}

// S3Policy grants object storage access.
func S3Policy() string {
	return mustJSON(policyDocument{
		Version: policyVersion,
		Statement: []statement{{
			Effect:   "Allow",
			Action:   []string{"s3:*Object", "s3:Get*", "s3:List*", "s3:*"},
			Resource: []string{"*"},
		}},
	})
}

// LogsPolicy grants write access to the workflow log group in account.
func LogsPolicy(partition, account string) string {
	group := fmt.Sprintf("arn:%s:logs:*:%s:log-group:%s", partition, account, workflowLogGroup)
	return mustJSON(policyDocument{
		Version: policyVersion,
		Statement: []statement{
			{
				Effect:   "Allow",
				Action:   []string{"logs:CreateLogGroup"},
				Resource: []string{group + ":*"},
			},
			{
				Effect:   "Allow",
				Action:   []string{"logs:DescribeLogStreams", "logs:CreateLogStream", "logs:PutLogEvents"},
				Resource: []string{group + ":log-stream:*"},
			},
		},
	})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Provisioner creates the baseline role and policies.
type Provisioner struct {
	API    API
	Logger *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(api API, logger *slog.Logger) *Provisioner {
	return &Provisioner{API: api, Logger: logging.Component(logger, "iam")}
}

// Provision ensures the role and both policies exist in the caller's account
// and that the policies are attached. Running it again changes nothing. It
// returns the role ARN.
func (p *Provisioner) Provision(ctx context.Context, id awsclient.Identity) (string, error) {
	logger := logging.OrDiscard(p.Logger)
	if id.Account == "" {
		return "", fmt.Errorf("provision: account is required")
	}
	if id.Partition == "" {
		id.Partition = awsclient.DefaultPartition
	}

	roleARN, err := p.ensureRole(ctx, logger)
	if err != nil {
		return "", err
	}
	policies := []struct{ name, doc string }{
		{S3PolicyName, S3Policy()},
		{LogsPolicyName, LogsPolicy(id.Partition, id.Account)},
	}
	for _, pol := range policies {
		arn, err := p.ensurePolicy(ctx, PolicyARN(id.Partition, id.Account, pol.name), pol.name, pol.doc, logger)
		if err != nil {
			return "", err
		}
		_, err = p.API.AttachRolePolicy(ctx, &iamsdk.AttachRolePolicyInput{
			RoleName:  aws.String(RoleName),
			PolicyArn: aws.String(arn),
		})
		if err != nil {
			return "", awsclient.Classify("attach policy "+pol.name, err)
		}
		logger.Info("policy attached", "role", RoleName, "policy_arn", arn)
	}
	return roleARN, nil
}

func (p *Provisioner) ensureRole(ctx context.Context, logger *slog.Logger) (string, error) {
	out, err := p.API.GetRole(ctx, &iamsdk.GetRoleInput{RoleName: aws.String(RoleName)})
	if err == nil {
		logger.Info("role already exists", "role", RoleName)
		return aws.ToString(out.Role.Arn), nil
	}
	if !isNoSuchEntity(err) {
		return "", awsclient.Classify("get role "+RoleName, err)
	}

	created, err := p.API.CreateRole(ctx, &iamsdk.CreateRoleInput{
		RoleName:                 aws.String(RoleName),
		AssumeRolePolicyDocument: aws.String(TrustPolicy()),
		Description:              aws.String(RoleDescription),
	})
	if err != nil {
		return "", awsclient.Classify("create role "+RoleName, err)
	}
	logger.Info("role created", "role", RoleName)
	return aws.ToString(created.Role.Arn), nil
}

func (p *Provisioner) ensurePolicy(ctx context.Context, arn, name, doc string, logger *slog.Logger) (string, error) {
	_, err := p.API.GetPolicy(ctx, &iamsdk.GetPolicyInput{PolicyArn: aws.String(arn)})
	if err == nil {
		logger.Info("policy already exists", "policy", name)
		return arn, nil
	}
	if !isNoSuchEntity(err) {
		return "", awsclient.Classify("get policy "+name, err)
	}

	out, err := p.API.CreatePolicy(ctx, &iamsdk.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(doc),
	})
	if err != nil {
		return "", awsclient.Classify("create policy "+name, err)
	}
	logger.Info("policy created", "policy", name)
	if out.Policy != nil && out.Policy.Arn != nil {
		return *out.Policy.Arn, nil
	}
	return arn, nil
}

// PolicyARN is the ARN of a customer managed policy.
func PolicyARN(partition, account, name string) string {
	return fmt.Sprintf("arn:%s:iam::%s:policy/%s", partition, account, name)
}

func isNoSuchEntity(err error) bool {
	var nse *types.NoSuchEntityException
	if errors.As(err, &nse) {
		return true
	}
	return awsclient.IsNotFound(err)
}
