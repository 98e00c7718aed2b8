package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/registry"
	"github.com/me/omicsx/pkg/model"
)

type fakeECR struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []string
	policies map[string]string
	token    string
	failRepo string
}

func newFakeECR(existing ...string) *fakeECR {
	f := &fakeECR{existing: map[string]bool{}, policies: map[string]string{}}
	for _, e := range existing {
		f.existing[e] = true
	}
	f.token = base64.StdEncoding.EncodeToString([]byte("AWS:secret-password"))
	return f
}

func (f *fakeECR) DescribeRepositories(_ context.Context, in *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := in.RepositoryNames[0]
	if name == f.failRepo {
		return nil, errors.New("access denied")
	}
	if !f.existing[name] {
		return nil, &types.RepositoryNotFoundException{Message: aws.String("not found")}
	}
	return &ecr.DescribeRepositoriesOutput{Repositories: []types.Repository{{RepositoryName: aws.String(name)}}}, nil
}

func (f *fakeECR) CreateRepository(_ context.Context, in *ecr.CreateRepositoryInput, _ ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.RepositoryName)
	f.existing[name] = true
	f.created = append(f.created, name)
	return &ecr.CreateRepositoryOutput{Repository: &types.Repository{RepositoryName: in.RepositoryName}}, nil
}

func (f *fakeECR) SetRepositoryPolicy(_ context.Context, in *ecr.SetRepositoryPolicyInput, _ ...func(*ecr.Options)) (*ecr.SetRepositoryPolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !in.Force {
		return nil, errors.New("force not set")
	}
	f.policies[aws.ToString(in.RepositoryName)] = aws.ToString(in.PolicyText)
	return &ecr.SetRepositoryPolicyOutput{}, nil
}

func (f *fakeECR) GetAuthorizationToken(context.Context, *ecr.GetAuthorizationTokenInput, ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	return &ecr.GetAuthorizationTokenOutput{AuthorizationData: []types.AuthorizationData{{
		AuthorizationToken: aws.String(f.token),
		ProxyEndpoint:      aws.String("https://123456789012.dkr.ecr.us-east-1.amazonaws.com"),
	}}}, nil
}

type fakeDocker struct {
	pulled   []string
	tagged   map[string]string
	pushed   []string
	auth     string
	pullErr  error
	pushBody string
}

func stream(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n")))
}

func (d *fakeDocker) ImagePull(_ context.Context, ref string, _ dockertypes.ImagePullOptions) (io.ReadCloser, error) {
	if d.pullErr != nil {
		return nil, d.pullErr
	}
	d.pulled = append(d.pulled, ref)
	return stream(`{"status":"Pulling from biocontainers/fastqc"}`, `{"status":"Download complete","id":"abc"}`), nil
}

func (d *fakeDocker) ImageTag(_ context.Context, source, target string) error {
	if d.tagged == nil {
		d.tagged = map[string]string{}
	}
	d.tagged[source] = target
	return nil
}

func (d *fakeDocker) ImagePush(_ context.Context, image string, opts dockertypes.ImagePushOptions) (io.ReadCloser, error) {
	d.pushed = append(d.pushed, image)
	d.auth = opts.RegistryAuth
	if d.pushBody != "" {
		return stream(d.pushBody), nil
	}
	return stream(`{"status":"Pushed","id":"abc"}`), nil
}

func TestEnsureRepository(t *testing.T) {
	api := newFakeECR("biocontainers/samtools")

	created, err := EnsureRepository(context.Background(), api, "biocontainers/samtools")
	if err != nil || created {
		t.Errorf("existing repository: created=%v err=%v", created, err)
	}
	created, err = EnsureRepository(context.Background(), api, "biocontainers/fastqc")
	if err != nil || !created {
		t.Errorf("new repository: created=%v err=%v", created, err)
	}

	api.failRepo = "broken"
	if _, err := EnsureRepository(context.Background(), api, "broken"); model.KindOf(err) != model.KindBackend {
		t.Errorf("err = %v, want backend error", err)
	}
}

func TestServicePolicy_IsValidJSON(t *testing.T) {
	var doc struct {
		Statement []struct {
			Sid       string
			Principal map[string]string
			Action    []string
		}
	}
	if err := json.Unmarshal([]byte(ServicePolicy), &doc); err != nil {
		t.Fatalf("policy is not JSON: %v", err)
	}
	st := doc.Statement[0]
	if st.Principal["Service"] != "omics.amazonaws.com" || len(st.Action) != 3 {
		t.Errorf("statement = %+v", st)
	}
}

func TestLogin(t *testing.T) {
	creds, err := Login(context.Background(), newFakeECR())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if creds.Username != "AWS" || creds.Password != "secret-password" {
		t.Errorf("creds = %+v", creds)
	}
	if creds.ServerAddress() != "123456789012.dkr.ecr.us-east-1.amazonaws.com" {
		t.Errorf("server = %q", creds.ServerAddress())
	}

	bad := newFakeECR()
	bad.token = base64.StdEncoding.EncodeToString([]byte("no-separator"))
	if _, err := Login(context.Background(), bad); model.KindOf(err) != model.KindBackend {
		t.Errorf("err = %v, want backend error", err)
	}
}

func TestMirror_SetupOnly(t *testing.T) {
	api := newFakeECR("biocontainers/samtools")
	m := NewMirror(api, nil, nil)

	images := []string{
		"quay.io/biocontainers/fastqc:0.12.1",
		"quay.io/biocontainers/samtools:1.17",
		"",
	}
	results, err := m.Run(context.Background(), images, Options{Account: "123456789012", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if !results[0].Created || results[0].Repository != "biocontainers/fastqc" {
		t.Errorf("fastqc = %+v", results[0])
	}
	if results[1].Created {
		t.Errorf("samtools should already exist: %+v", results[1])
	}
	if results[2].Error == "" {
		t.Error("empty image should record an error")
	}
	if results[0].Target != "123456789012.dkr.ecr.us-east-1.amazonaws.com/biocontainers/fastqc:0.12.1" {
		t.Errorf("target = %q", results[0].Target)
	}
	for _, repo := range []string{"biocontainers/fastqc", "biocontainers/samtools"} {
		if api.policies[repo] != ServicePolicy {
			t.Errorf("policy not applied to %s", repo)
		}
	}
}

func TestMirror_Push(t *testing.T) {
	api := newFakeECR()
	docker := &fakeDocker{pullErr: errors.New("not found upstream")}
	m := NewMirror(api, docker, nil)

	results, err := m.Run(context.Background(), []string{"biocontainers/fastqc:0.12.1"}, Options{
		Account: "123456789012", Region: "us-east-1", Push: true, Concurrency: 1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Pushed || results[0].Error != "" {
		t.Fatalf("result = %+v", results[0])
	}
	target := "123456789012.dkr.ecr.us-east-1.amazonaws.com/biocontainers/fastqc:0.12.1"
	if docker.tagged["biocontainers/fastqc:0.12.1"] != target {
		t.Errorf("tagged = %v", docker.tagged)
	}
	if len(docker.pushed) != 1 || docker.pushed[0] != target {
		t.Errorf("pushed = %v", docker.pushed)
	}

	raw, err := base64.URLEncoding.DecodeString(docker.auth)
	if err != nil {
		t.Fatalf("decode auth: %v", err)
	}
	var auth registry.AuthConfig
	if err := json.Unmarshal(raw, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth.Username != "AWS" || auth.Password != "secret-password" {
		t.Errorf("auth = %+v", auth)
	}
}

func TestMirror_PushStreamError(t *testing.T) {
	docker := &fakeDocker{pushBody: `{"errorDetail":{"message":"denied"},"error":"denied: not authorized"}`}
	m := NewMirror(newFakeECR(), docker, nil)

	results, err := m.Run(context.Background(), []string{"ubuntu:22.04"}, Options{Account: "1", Region: "us-east-1", Push: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Pushed || !strings.Contains(results[0].Error, "denied") {
		t.Errorf("result = %+v", results[0])
	}
}

func TestMirror_RequiresAccountAndDocker(t *testing.T) {
	m := NewMirror(newFakeECR(), nil, nil)
	if _, err := m.Run(context.Background(), nil, Options{Region: "us-east-1"}); err == nil {
		t.Error("expected error without account")
	}
	if _, err := m.Run(context.Background(), nil, Options{Account: "1", Region: "us-east-1", Push: true}); err == nil {
		t.Error("expected error pushing without docker client")
	}
}
