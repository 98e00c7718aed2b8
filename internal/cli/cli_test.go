package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	iamsdk "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/omics"
	"github.com/aws/aws-sdk-go-v2/service/omics/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/me/omicsx/internal/config"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/internal/report"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/internal/server"
	"github.com/me/omicsx/internal/telemetry"
	"github.com/me/omicsx/pkg/model"
)

const testAccount = "123456789012"

var runStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeOmics struct {
	listedRuns *omics.ListRunsInput
	started    *omics.StartRunInput
	created    *omics.CreateWorkflowInput
}

func (f *fakeOmics) GetRun(_ context.Context, in *omics.GetRunInput, _ ...func(*omics.Options)) (*omics.GetRunOutput, error) {
	if aws.ToString(in.Id) != "1234567" {
		return nil, &types.ResourceNotFoundException{Message: aws.String("run not found")}
	}
	return &omics.GetRunOutput{
		Id:              aws.String("1234567"),
		Name:            aws.String("rnaseq"),
		WorkflowId:      aws.String("9876543"),
		Status:          types.RunStatusCompleted,
		StorageCapacity: aws.Int32(1200),
		CreationTime:    aws.Time(runStart),
		StartTime:       aws.Time(runStart),
		StopTime:        aws.Time(runStart.Add(2 * time.Hour)),
	}, nil
}

func (f *fakeOmics) ListRunTasks(_ context.Context, in *omics.ListRunTasksInput, _ ...func(*omics.Options)) (*omics.ListRunTasksOutput, error) {
	return &omics.ListRunTasksOutput{Items: []types.TaskListItem{{
		TaskId:       aws.String("t1"),
		Name:         aws.String("NFCORE_RNASEQ:RNASEQ:FASTQC (sample1)"),
		Status:       types.TaskStatusCompleted,
		Cpus:         aws.Int32(2),
		Memory:       aws.Int32(4),
		InstanceType: aws.String("c.large"),
		CreationTime: aws.Time(runStart),
		StartTime:    aws.Time(runStart),
		StopTime:     aws.Time(runStart.Add(2 * time.Hour)),
	}}}, nil
}

func (f *fakeOmics) ListRuns(_ context.Context, in *omics.ListRunsInput, _ ...func(*omics.Options)) (*omics.ListRunsOutput, error) {
	f.listedRuns = in
	return &omics.ListRunsOutput{Items: []types.RunListItem{{
		Id:           aws.String("1234567"),
		Name:         aws.String("rnaseq"),
		WorkflowId:   aws.String("9876543"),
		Status:       types.RunStatusCompleted,
		CreationTime: aws.Time(runStart),
	}}}, nil
}

func (f *fakeOmics) StartRun(_ context.Context, in *omics.StartRunInput, _ ...func(*omics.Options)) (*omics.StartRunOutput, error) {
	f.started = in
	return &omics.StartRunOutput{Id: aws.String("7654321"), Arn: aws.String("arn:aws:omics:us-east-1:123456789012:run/7654321"), Status: types.RunStatusPending}, nil
}

func (f *fakeOmics) CreateWorkflow(_ context.Context, in *omics.CreateWorkflowInput, _ ...func(*omics.Options)) (*omics.CreateWorkflowOutput, error) {
	f.created = in
	return &omics.CreateWorkflowOutput{Id: aws.String("9876543"), Status: types.WorkflowStatusCreating}, nil
}

func (f *fakeOmics) GetWorkflow(_ context.Context, in *omics.GetWorkflowInput, _ ...func(*omics.Options)) (*omics.GetWorkflowOutput, error) {
	return &omics.GetWorkflowOutput{
		Id:           in.Id,
		Name:         aws.String("rnaseq"),
		Status:       types.WorkflowStatusActive,
		Type:         types.WorkflowTypePrivate,
		CreationTime: aws.Time(runStart),
	}, nil
}

func (f *fakeOmics) ListWorkflows(_ context.Context, in *omics.ListWorkflowsInput, _ ...func(*omics.Options)) (*omics.ListWorkflowsOutput, error) {
	return &omics.ListWorkflowsOutput{Items: []types.WorkflowListItem{{
		Id:           aws.String("9876543"),
		Name:         aws.String("rnaseq"),
		Status:       types.WorkflowStatusActive,
		Type:         types.WorkflowTypePrivate,
		CreationTime: aws.Time(runStart),
	}}}, nil
}

type fakeECR struct {
	mu      sync.Mutex
	created []string
}

func (f *fakeECR) DescribeRepositories(context.Context, *ecr.DescribeRepositoriesInput, ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	return nil, &ecrtypes.RepositoryNotFoundException{Message: aws.String("not found")}
}

func (f *fakeECR) CreateRepository(_ context.Context, in *ecr.CreateRepositoryInput, _ ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, aws.ToString(in.RepositoryName))
	return &ecr.CreateRepositoryOutput{Repository: &ecrtypes.Repository{RepositoryName: in.RepositoryName}}, nil
}

func (f *fakeECR) SetRepositoryPolicy(context.Context, *ecr.SetRepositoryPolicyInput, ...func(*ecr.Options)) (*ecr.SetRepositoryPolicyOutput, error) {
	return &ecr.SetRepositoryPolicyOutput{}, nil
}

func (f *fakeECR) GetAuthorizationToken(context.Context, *ecr.GetAuthorizationTokenInput, ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	return nil, errors.New("not used without --push")
}

// fakeIAM reports every entity missing and records what gets created.
type fakeIAM struct{ created []string }

func (f *fakeIAM) GetRole(context.Context, *iamsdk.GetRoleInput, ...func(*iamsdk.Options)) (*iamsdk.GetRoleOutput, error) {
	return nil, &iamtypes.NoSuchEntityException{Message: aws.String("missing")}
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iamsdk.CreateRoleInput, _ ...func(*iamsdk.Options)) (*iamsdk.CreateRoleOutput, error) {
	f.created = append(f.created, aws.ToString(in.RoleName))
	arn := "arn:aws:iam::" + testAccount + ":role/" + aws.ToString(in.RoleName)
	return &iamsdk.CreateRoleOutput{Role: &iamtypes.Role{Arn: aws.String(arn), RoleName: in.RoleName}}, nil
}

func (f *fakeIAM) GetPolicy(context.Context, *iamsdk.GetPolicyInput, ...func(*iamsdk.Options)) (*iamsdk.GetPolicyOutput, error) {
	return nil, &iamtypes.NoSuchEntityException{Message: aws.String("missing")}
}

func (f *fakeIAM) CreatePolicy(_ context.Context, in *iamsdk.CreatePolicyInput, _ ...func(*iamsdk.Options)) (*iamsdk.CreatePolicyOutput, error) {
	f.created = append(f.created, aws.ToString(in.PolicyName))
	arn := "arn:aws:iam::" + testAccount + ":policy/" + aws.ToString(in.PolicyName)
	return &iamsdk.CreatePolicyOutput{Policy: &iamtypes.Policy{Arn: aws.String(arn)}}, nil
}

func (f *fakeIAM) AttachRolePolicy(context.Context, *iamsdk.AttachRolePolicyInput, ...func(*iamsdk.Options)) (*iamsdk.AttachRolePolicyOutput, error) {
	return &iamsdk.AttachRolePolicyOutput{}, nil
}

type fakeSTS struct{}

func (fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(testAccount),
		Arn:     aws.String("arn:aws:iam::" + testAccount + ":user/test"),
	}, nil
}

type testEnv struct {
	omics *fakeOmics
	ecr   *fakeECR
	iam   *fakeIAM
}

func newTestEnv() *testEnv {
	return &testEnv{omics: &fakeOmics{}, ecr: &fakeECR{}, iam: &fakeIAM{}}
}

func (e *testEnv) clients() *Clients {
	return &Clients{Omics: e.omics, ECR: e.ecr, IAM: e.iam, STS: fakeSTS{}}
}

// execute runs the root command with args against the fakes in env and
// returns what it wrote to stdout.
func execute(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"OMICSX_SERVER", "AWS_REGION", "AWS_DEFAULT_REGION", "AWS_PROFILE",
		"OMICSX_PRICING_FILE", "OMICSX_PRICING_ENDPOINT", "OMICSX_MIN_STORAGE_GIB", "OMICSX_HTTP_TIMEOUT"} {
		t.Setenv(k, "")
	}

	orig := newClients
	newClients = func(context.Context, config.Config) (*Clients, error) { return env.clients(), nil }
	t.Cleanup(func() { newClients = orig })

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func offerPath(t *testing.T) string {
	t.Helper()
	p, err := filepath.Abs("../pricing/testdata/offer.json")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestVersion(t *testing.T) {
	out, err := execute(t, newTestEnv(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "omicsx "+server.Version {
		t.Errorf("output = %q", out)
	}
}

func TestConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("region: eu-west-1\nprofile: lab\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, newTestEnv(), "--config", path, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if cfg.Region != "eu-west-1" || cfg.Profile != "lab" {
		t.Errorf("from file: region=%q profile=%q", cfg.Region, cfg.Profile)
	}

	if _, err := execute(t, newTestEnv(), "--config", path, "--region", "us-west-2", "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if cfg.Region != "us-west-2" {
		t.Errorf("flag should win: region=%q", cfg.Region)
	}

	if _, err := execute(t, newTestEnv(), "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"); err == nil {
		t.Error("expected error for an explicit missing config file")
	}
}

func TestRunCost_JSON(t *testing.T) {
	out, err := execute(t, newTestEnv(), "run-cost", "--run-id", "1234567", "--pricing-file", offerPath(t), "-o", "json")
	if err != nil {
		t.Fatalf("run-cost: %v", err)
	}
	var doc report.CostDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if doc.Cost == nil || !approx(doc.Cost.GrandTotal, 0.98) {
		t.Fatalf("cost = %+v", doc.Cost)
	}
	if len(doc.Cost.Tasks) != 1 || !approx(doc.Cost.Tasks[0].Cost, 0.68) {
		t.Errorf("tasks = %+v", doc.Cost.Tasks)
	}
	if doc.Cost.Storage.BilledGiB != 1200 || !approx(doc.Cost.Storage.Cost, 0.30) {
		t.Errorf("storage = %+v", doc.Cost.Storage)
	}
	if len(doc.Run) == 0 || doc.Run[0].Name != "run_id" || doc.Run[0].Value != "1234567" {
		t.Errorf("run fields = %+v", doc.Run)
	}
}

func TestRunCost_Table(t *testing.T) {
	out, err := execute(t, newTestEnv(), "run-cost", "--run-id", "1234567", "--pricing-file", offerPath(t), "--min-storage-gib", "2400")
	if err != nil {
		t.Fatalf("run-cost: %v", err)
	}
	for _, want := range []string{"1234567", "FASTQC", "c.large", "2400"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCost_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind model.ErrorKind
	}{
		{"unknown run", []string{"run-cost", "--run-id", "0000000", "--pricing-file", offerPath(t)}, model.KindExecutionNotFound},
		{"bad output", []string{"run-cost", "--run-id", "1234567", "-o", "yaml"}, model.KindValidation},
		{"negative floor", []string{"run-cost", "--run-id", "1234567", "--min-storage-gib=-1"}, model.KindValidation},
		{"missing pricing file", []string{"run-cost", "--run-id", "1234567", "--pricing-file", filepath.Join(t.TempDir(), "none.json")}, model.KindPricingUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newTestEnv(), tt.args...)
			if got := model.KindOf(err); got != tt.kind {
				t.Errorf("error kind = %q, want %q (err=%v)", got, tt.kind, err)
			}
		})
	}
}

func TestRunCost_RequiresRunID(t *testing.T) {
	if _, err := execute(t, newTestEnv(), "run-cost"); err == nil {
		t.Error("expected error without --run-id")
	}
}

type staticSource struct{ catalog pricing.Catalog }

func (s staticSource) Load(context.Context, string, string, string) (pricing.Catalog, error) {
	return s.catalog, nil
}

func startReportServer(t *testing.T, env *testEnv) string {
	t.Helper()
	backend := server.Backend{
		Fetcher: telemetry.NewFetcher(env.omics, 0, nil),
		Runs:    runs.New(env.omics, fakeSTS{}, nil),
		Pricing: func() pricing.Source {
			return staticSource{catalog: pricing.Catalog{
				"c.large":             {Unit: model.UnitHours, Amount: 0.34},
				pricing.RunStorageKey: {Unit: model.UnitGiBHours, Amount: 0.000125},
			}}
		},
	}
	ts := httptest.NewServer(server.New(config.DefaultConfig(), backend, logging.Discard()).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRunCost_ViaServer(t *testing.T) {
	env := newTestEnv()
	url := startReportServer(t, env)

	out, err := execute(t, env, "--server", url, "run-cost", "--run-id", "1234567", "-o", "json")
	if err != nil {
		t.Fatalf("run-cost: %v", err)
	}
	var doc report.CostDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if doc.Cost == nil || !approx(doc.Cost.GrandTotal, 0.98) {
		t.Errorf("cost = %+v", doc.Cost)
	}

	_, err = execute(t, env, "--server", url, "run-cost", "--run-id", "0000000")
	if !errors.Is(err, model.ErrExecutionNotFound) {
		t.Errorf("err = %v, want execution not found", err)
	}

	_, err = execute(t, env, "--server", url, "run-cost", "--run-id", "1234567", "--pricing-file", offerPath(t))
	if model.KindOf(err) != model.KindValidation {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestListRuns(t *testing.T) {
	env := newTestEnv()
	out, err := execute(t, env, "list-runs", "--status", "completed", "-o", "json")
	if err != nil {
		t.Fatalf("list-runs: %v", err)
	}
	var list []model.RunSummary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "1234567" {
		t.Errorf("runs = %+v", list)
	}
	if env.omics.listedRuns == nil || env.omics.listedRuns.Status != types.RunStatusCompleted {
		t.Errorf("list input = %+v", env.omics.listedRuns)
	}
}

func TestListRuns_ViaServer(t *testing.T) {
	env := newTestEnv()
	url := startReportServer(t, env)
	out, err := execute(t, env, "--server", url, "list-runs")
	if err != nil {
		t.Fatalf("list-runs: %v", err)
	}
	if !strings.Contains(out, "RUN_ID") || !strings.Contains(out, "1234567") {
		t.Errorf("output:\n%s", out)
	}
}

func TestListWorkflows(t *testing.T) {
	out, err := execute(t, newTestEnv(), "list-workflows")
	if err != nil {
		t.Fatalf("list-workflows: %v", err)
	}
	for _, want := range []string{"9876543", "rnaseq", "ACTIVE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCreateWorkflow(t *testing.T) {
	env := newTestEnv()
	out, err := execute(t, env, "create-workflow", "--nf-workflow", "../nextflow/testdata/rnaseq", "--name", "rnaseq", "--no-wait")
	if err != nil {
		t.Fatalf("create-workflow: %v", err)
	}
	if !strings.Contains(out, "9876543") || !strings.Contains(out, "ACTIVE") {
		t.Errorf("output = %q", out)
	}
	in := env.omics.created
	if in == nil {
		t.Fatal("CreateWorkflow not called")
	}
	if in.Engine != types.WorkflowEngineNextflow || aws.ToString(in.Main) != "main.nf" {
		t.Errorf("engine=%s main=%s", in.Engine, aws.ToString(in.Main))
	}
	if len(in.DefinitionZip) == 0 {
		t.Error("definition zip is empty")
	}
	if _, ok := in.ParameterTemplate["omics"]; !ok {
		t.Errorf("parameter template missing omics: %v", in.ParameterTemplate)
	}
}

// copyTree copies the workflow testdata so commands may write into it.
func copyTree(t *testing.T, src string) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), filepath.Base(src))
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("copy %s: %v", src, err)
	}
	return dst
}

func TestCreateECRRepos(t *testing.T) {
	env := newTestEnv()
	dir := copyTree(t, "../nextflow/testdata/rnaseq")
	manifest := filepath.Join(t.TempDir(), "manifest.json")

	out, err := execute(t, env, "create-ecr-repos", "--nf-workflow", dir, "--output-manifest-file", manifest)
	if err != nil {
		t.Fatalf("create-ecr-repos: %v", err)
	}

	data, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var doc manifestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(doc.Manifest) != 3 || doc.Manifest[0] != "biocontainers/fastqc:0.12.1--hdfd78af_0" {
		t.Errorf("manifest = %v", doc.Manifest)
	}

	conf, err := os.ReadFile(filepath.Join(dir, "omics.config"))
	if err != nil {
		t.Fatalf("read omics.config: %v", err)
	}
	want := "123456789012.dkr.ecr.us-east-1.amazonaws.com/biocontainers/samtools:1.17--h00cdaf9_0"
	if !strings.Contains(string(conf), want) {
		t.Errorf("omics.config missing %s:\n%s", want, conf)
	}

	nfConfig, err := os.ReadFile(filepath.Join(dir, "nextflow.config"))
	if err != nil {
		t.Fatalf("read nextflow.config: %v", err)
	}
	if !strings.Contains(string(nfConfig), "omics.config") {
		t.Errorf("nextflow.config = %q", nfConfig)
	}

	if len(env.ecr.created) != 3 {
		t.Errorf("repositories created = %v", env.ecr.created)
	}
	if !strings.Contains(out, "biocontainers/multiqc") {
		t.Errorf("output:\n%s", out)
	}
}

func TestCreateECRRepos_NoECR(t *testing.T) {
	env := newTestEnv()
	dir := copyTree(t, "../nextflow/testdata/rnaseq")
	conf := filepath.Join(t.TempDir(), "custom.config")

	_, err := execute(t, env, "create-ecr-repos", "--nf-workflow", dir, "--create-ecr=false",
		"--output-manifest-file", filepath.Join(t.TempDir(), "m.json"), "--output-config-file", conf)
	if err != nil {
		t.Fatalf("create-ecr-repos: %v", err)
	}
	if len(env.ecr.created) != 0 {
		t.Errorf("repositories created with --create-ecr=false: %v", env.ecr.created)
	}
	if _, err := os.Stat(conf); err != nil {
		t.Errorf("config not written: %v", err)
	}
}

func TestSetupIAM(t *testing.T) {
	env := newTestEnv()
	out, err := execute(t, env, "setup-iam")
	if err != nil {
		t.Fatalf("setup-iam: %v", err)
	}
	if !strings.Contains(out, "arn:aws:iam::123456789012:role/OmicsFullAccessServiceRole") {
		t.Errorf("output = %q", out)
	}
	if len(env.iam.created) != 3 {
		t.Errorf("created = %v", env.iam.created)
	}
}

func TestStartRun(t *testing.T) {
	env := newTestEnv()
	params := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(params, []byte("input: s3://bucket/samplesheet.csv\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, env, "start-run", "--workflow-id", "9876543", "--name", "rnaseq-1",
		"--output-uri", "s3://bucket/out", "--parameters", params, "--tag", "project=atlas", "--tag", "owner=lab")
	if err != nil {
		t.Fatalf("start-run: %v", err)
	}
	if !strings.Contains(out, "7654321") {
		t.Errorf("output = %q", out)
	}

	in := env.omics.started
	if in == nil {
		t.Fatal("StartRun not called")
	}
	if got := aws.ToString(in.RoleArn); got != "arn:aws:iam::123456789012:role/OmicsFullAccessServiceRole" {
		t.Errorf("role = %q", got)
	}
	if aws.ToInt32(in.StorageCapacity) != 9600 {
		t.Errorf("storage capacity = %d", aws.ToInt32(in.StorageCapacity))
	}
	if in.Tags["project"] != "atlas" || in.Tags["owner"] != "lab" {
		t.Errorf("tags = %v", in.Tags)
	}
	if in.Parameters == nil {
		t.Error("parameters not sent")
	}
}

func TestStartRun_BadTag(t *testing.T) {
	_, err := execute(t, newTestEnv(), "start-run", "--workflow-id", "1", "--name", "n",
		"--output-uri", "s3://b/o", "--tag", "novalue")
	if model.KindOf(err) != model.KindValidation {
		t.Errorf("err = %v, want validation error", err)
	}
}
