package deployment_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/catalog"
	"github.com/ai4os/papi/pkg/deployment"
	"github.com/ai4os/papi/pkg/quota"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/secrets"
	"github.com/ai4os/papi/pkg/secretstore"
	"github.com/ai4os/papi/pkg/template"
)

type staticTree struct{ files map[string]string }

func (t staticTree) ReadFile(path string) ([]byte, error) {
	v, ok := t.files[path]
	if !ok {
		return nil, fmt.Errorf("no file %q", path)
	}
	return []byte(v), nil
}

const moduleList = `
- name: demo
  url: https://example.org/demo.git
  branch: main
`

const demoMetadata = `
version: "2"
title: Demo module
docker_image: ai4os/demo:latest
`

func newHarness(t *testing.T) (*deployment.Controller, *scheduler.Fake) {
	t.Helper()
	fetch := func(_ context.Context, url, _ string) (catalog.Tree, error) {
		switch url {
		case "https://example.org/modules.git":
			return staticTree{files: map[string]string{"module-list.yaml": moduleList}}, nil
		case "https://example.org/demo.git":
			return staticTree{files: map[string]string{"metadata.yaml": demoMetadata}}, nil
		}
		return nil, fmt.Errorf("no fixture for %q", url)
	}
	cat := catalog.New(
		[]catalog.Source{{Kind: apitypes.KindModule, URL: "https://example.org/modules.git", Branch: "main", ModuleListPath: "module-list.yaml"}},
		registryclient.AllowList{"ai4os"},
		fetch, nil,
	)

	sched := scheduler.NewFake()
	ledger := quota.New(sched, map[string]apitypes.CapTable{
		"ai4eosc.eu": {PerUser: apitypes.Resources{CPUCores: 8, MemoryMB: 16000, DiskMB: 4000, GPUCount: 2}, MaxDeploys: 5, GlobalGPU: 2},
	})
	secretsBroker := secrets.New(secretstore.NewFake(), map[string]apitypes.VO{"ai4eosc.eu": {SecretRoot: "ai4eosc"}})

	vos := map[string]apitypes.VO{"ai4eosc.eu": {Namespace: "ai4eosc", Domain: "deploy.ai4eosc.eu"}}
	tpl := template.Tokenize(`{"uuid":"${JOB_UUID}","image":"${DOCKER_IMAGE}","node":"${meta.domain}"}`)
	profiles := map[apitypes.Kind]deployment.KindProfile{
		apitypes.KindModule: {Template: tpl, Priority: 50, Roles: []string{"api"}},
	}

	var counter int
	idgen := func() string {
		counter++
		return fmt.Sprintf("uuid-%d", counter)
	}

	ctrl := deployment.New(cat, ledger, secretsBroker, sched, vos, profiles, registryclient.AllowList{"ai4os"}, idgen)
	return ctrl, sched
}

func baseInput() deployment.CreateInput {
	return deployment.CreateInput{
		Subject:    "alice-sub",
		OwnerName:  "Alice",
		OwnerEmail: "alice@example.org",
		VO:         "ai4eosc.eu",
		Kind:       apitypes.KindModule,
		Name:       "demo",
		Title:      "my deployment",
		Resources:  apitypes.Resources{CPUCores: 1, MemoryMB: 1000},
	}
}

func TestCreate_HappyPath(t *testing.T) {
	ctrl, _ := newHarness(t)
	resp, err := ctrl.Create(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.UUID == "" {
		t.Fatalf("expected a uuid")
	}
	if resp.Endpoints["api"] == "" {
		t.Fatalf("expected a predicted api endpoint, got %+v", resp.Endpoints)
	}
}

func TestCreate_UnknownWorkload(t *testing.T) {
	ctrl, _ := newHarness(t)
	in := baseInput()
	in.Name = "does-not-exist"
	_, err := ctrl.Create(context.Background(), in)
	if !apierrors.Is(err, apierrors.KindUnknownWorkload) {
		t.Fatalf("got %v, want unknown-workload", err)
	}
}

func TestCreate_TitleTooLongIsBadRequest(t *testing.T) {
	ctrl, _ := newHarness(t)
	in := baseInput()
	in.Title = "this title is deliberately far too long for the forty-five character cap spec enforces"
	_, err := ctrl.Create(context.Background(), in)
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request", err)
	}
}

const metadataWithSchema = `
version: "2"
title: Demo module
docker_image: ai4os/demo:latest
config_schema:
  hardware:
    gpu_num:
      name: GPU count
      value: 0
      range: [0, 4]
`

func TestCreate_RejectsValueOutsideSchemaRange(t *testing.T) {
	fetch := func(_ context.Context, url, _ string) (catalog.Tree, error) {
		switch url {
		case "https://example.org/modules.git":
			return staticTree{files: map[string]string{"module-list.yaml": moduleList}}, nil
		case "https://example.org/demo.git":
			return staticTree{files: map[string]string{"metadata.yaml": metadataWithSchema}}, nil
		}
		return nil, fmt.Errorf("no fixture for %q", url)
	}
	cat := catalog.New(
		[]catalog.Source{{Kind: apitypes.KindModule, URL: "https://example.org/modules.git", Branch: "main", ModuleListPath: "module-list.yaml"}},
		registryclient.AllowList{"ai4os"},
		fetch, nil,
	)
	sched := scheduler.NewFake()
	ledger := quota.New(sched, map[string]apitypes.CapTable{
		"ai4eosc.eu": {PerUser: apitypes.Resources{CPUCores: 8, MemoryMB: 16000, DiskMB: 4000, GPUCount: 2}, MaxDeploys: 5, GlobalGPU: 2},
	})
	secretsBroker := secrets.New(secretstore.NewFake(), map[string]apitypes.VO{"ai4eosc.eu": {SecretRoot: "ai4eosc"}})
	vos := map[string]apitypes.VO{"ai4eosc.eu": {Namespace: "ai4eosc", Domain: "deploy.ai4eosc.eu"}}
	tpl := template.Tokenize(`{"uuid":"${JOB_UUID}"}`)
	profiles := map[apitypes.Kind]deployment.KindProfile{
		apitypes.KindModule: {Template: tpl, Priority: 50, Roles: []string{"api"}},
	}
	ctrl := deployment.New(cat, ledger, secretsBroker, sched, vos, profiles, registryclient.AllowList{"ai4os"}, func() string { return "uuid-1" })

	in := baseInput()
	in.Config.Hardware = map[string]any{"gpu_num": float64(99)}
	_, err := ctrl.Create(context.Background(), in)
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request for out-of-range gpu_num", err)
	}
}

func TestCreate_QuotaExceeded(t *testing.T) {
	ctrl, _ := newHarness(t)
	in := baseInput()
	in.Resources = apitypes.Resources{CPUCores: 99}
	_, err := ctrl.Create(context.Background(), in)
	if !apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want quota-exceeded", err)
	}
}

func TestGet_ForbidsNonOwner(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{ID: "job-1", Namespace: "ai4eosc", Owner: "bob-sub", Name: "module-job-1"})

	_, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-1")
	if !apierrors.Is(err, apierrors.KindForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestGet_ProjectsRunningStatus(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{
		ID: "job-2", Namespace: "ai4eosc", Owner: "alice-sub", Name: "module-job-2",
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocRunning, CreateTime: time.Now(), Tasks: map[string]scheduler.TaskState{"main": {Name: "main"}}},
		},
	})

	d, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != apitypes.StatusRunning {
		t.Fatalf("got status %v, want running", d.Status)
	}
}

func TestGet_ProjectsDownStatusOnUnknownAllocation(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{
		ID: "job-3", Namespace: "ai4eosc", Owner: "alice-sub", Name: "module-job-3",
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocRunning, CreateTime: time.Now()},
			{ID: "a2", Status: scheduler.AllocUnknown, CreateTime: time.Now().Add(-time.Hour)},
		},
	})

	d, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != apitypes.StatusDown {
		t.Fatalf("got status %v, want down (unknown allocation takes precedence even though older)", d.Status)
	}
}

func TestGet_DeadBatchJobWithCompleteAllocationProjectsComplete(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{
		ID: "job-3a", Namespace: "ai4eosc", Owner: "alice-sub", Name: "batch-inference-job-3a",
		Dead: true,
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocComplete, CreateTime: time.Now(), Tasks: map[string]scheduler.TaskState{"main": {Name: "main"}}},
		},
	})

	d, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-3a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != apitypes.StatusComplete {
		t.Fatalf("got status %v, want complete (a dead batch job whose allocation ran to completion is not a user delete)", d.Status)
	}
}

func TestGet_DeadJobWithFailedAllocationProjectsError(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{
		ID: "job-3b", Namespace: "ai4eosc", Owner: "alice-sub", Name: "module-job-3b",
		Dead: true,
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocFailed, CreateTime: time.Now(), Tasks: map[string]scheduler.TaskState{"main": {Name: "main", LastMessage: "oom"}}},
		},
	})

	d, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-3b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != apitypes.StatusError {
		t.Fatalf("got status %v, want error (a dead job that exhausted retries is not a user delete)", d.Status)
	}
}

func TestGet_UserDeletedJobProjectsDeletedEvenWithCompleteAllocation(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{
		ID: "job-3c", Namespace: "ai4eosc", Owner: "alice-sub", Name: "batch-inference-job-3c",
		Dead: true, UserDeleted: true,
		Allocations: []scheduler.Allocation{
			{ID: "a1", Status: scheduler.AllocComplete, CreateTime: time.Now(), Tasks: map[string]scheduler.TaskState{"main": {Name: "main"}}},
		},
	})

	d, err := ctrl.Get(context.Background(), "alice-sub", "ai4eosc.eu", "job-3c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != apitypes.StatusDeleted {
		t.Fatalf("got status %v, want deleted", d.Status)
	}
}

func TestDelete_PurgesOwnedJob(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{ID: "job-4", Namespace: "ai4eosc", Owner: "alice-sub", Name: "module-job-4"})

	if err := ctrl.Delete(context.Background(), "alice-sub", "ai4eosc.eu", "job-4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := sched.GetJob(context.Background(), "ai4eosc", "job-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected job to be purged, got %+v", got)
	}
}

func TestList_FiltersByKind(t *testing.T) {
	ctrl, sched := newHarness(t)
	sched.PutJob(scheduler.Job{ID: "job-5", Namespace: "ai4eosc", Owner: "alice-sub", Name: "module-job-5"})
	sched.PutJob(scheduler.Job{ID: "job-6", Namespace: "ai4eosc", Owner: "alice-sub", Name: "tool-job-6"})

	out, err := ctrl.List(context.Background(), "alice-sub", "ai4eosc.eu", []apitypes.Kind{apitypes.KindTool})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].UUID != "job-6" {
		t.Fatalf("got %+v, want only job-6", out)
	}
}
