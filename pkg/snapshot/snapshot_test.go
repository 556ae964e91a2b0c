package snapshot_test

import (
	"context"
	"testing"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/snapshot"
)

const tpl = `{"job_uuid": "${JOB_UUID}", "target": "${TARGET_JOB_ID}", "node": "${TARGET_NODE_ID}", "owner": "${FORMATTED_OWNER}", "meta_host": "${meta.domain}"}`

func vos() map[string]apitypes.VO {
	return map[string]apitypes.VO{"ai4eosc.eu": {Namespace: "ai4eosc"}}
}

func TestCreate_RejectsUnknownTarget(t *testing.T) {
	sched := scheduler.NewFake()
	reg := registryclient.NewFakeRegistry()
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	_, err := o.Create(context.Background(), "alice@example.org", "Alice", "alice@example.org", "ai4eosc.eu", "no-such-job", "t", "d")
	if !apierrors.Is(err, apierrors.KindUnknownWorkload) {
		t.Fatalf("got %v, want unknown-workload", err)
	}
}

func TestCreate_RejectsNonOwner(t *testing.T) {
	sched := scheduler.NewFake()
	sched.PutJob(scheduler.Job{
		ID: "job-1", Namespace: "ai4eosc", Owner: "bob@example.org",
		Allocations: []scheduler.Allocation{{NodeID: "node-1", Status: scheduler.AllocRunning}},
	})
	reg := registryclient.NewFakeRegistry()
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	_, err := o.Create(context.Background(), "alice@example.org", "Alice", "alice@example.org", "ai4eosc.eu", "job-1", "t", "d")
	if !apierrors.Is(err, apierrors.KindForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
}

func TestCreate_RejectsOverQuota(t *testing.T) {
	sched := scheduler.NewFake()
	sched.PutJob(scheduler.Job{
		ID: "job-1", Namespace: "ai4eosc", Owner: "alice@example.org",
		Allocations: []scheduler.Allocation{{NodeID: "node-1", Status: scheduler.AllocRunning}},
	})
	reg := registryclient.NewFakeRegistry()
	reg.Put(registryclient.Artifact{
		Repository: "user-snapshots/alice_at_example.org",
		Tag:        "existing",
		SizeBytes:  apitypes.SnapshotQuotaBytes,
	})
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	_, err := o.Create(context.Background(), "alice@example.org", "Alice", "alice@example.org", "ai4eosc.eu", "job-1", "t", "d")
	if !apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want quota-exceeded", err)
	}
}

func TestCreate_RejectsOversizedFilesystem(t *testing.T) {
	sched := scheduler.NewFake()
	sched.PutJob(scheduler.Job{
		ID: "job-1", Namespace: "ai4eosc", Owner: "alice@example.org",
		Requested:   apitypes.Resources{DiskMB: 12 * 1024}, // 12 GiB, over the 10 GiB cap
		Allocations: []scheduler.Allocation{{NodeID: "node-1", Status: scheduler.AllocRunning}},
	})
	reg := registryclient.NewFakeRegistry()
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	_, err := o.Create(context.Background(), "alice@example.org", "Alice", "alice@example.org", "ai4eosc.eu", "job-1", "t", "d")
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request (too-large)", err)
	}
}

func TestCreate_RendersRuntimePlaceholdersUntouched(t *testing.T) {
	sched := scheduler.NewFake()
	sched.PutJob(scheduler.Job{
		ID: "job-1", Namespace: "ai4eosc", Owner: "alice@example.org",
		Allocations: []scheduler.Allocation{{NodeID: "node-7", Status: scheduler.AllocRunning}},
	})
	reg := registryclient.NewFakeRegistry()
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	snapID, err := o.Create(context.Background(), "alice@example.org", "Alice", "alice@example.org", "ai4eosc.eu", "job-1", "my title", "my desc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapID == "" {
		t.Fatalf("expected a non-empty snapshot id")
	}
}

func TestList_MergesCompletedAndInProgress(t *testing.T) {
	sched := scheduler.NewFake()
	sched.PutJob(scheduler.Job{ID: "snapshot-xyz", Namespace: "ai4eosc", Owner: "alice@example.org", Name: "snapshot-xyz"})
	reg := registryclient.NewFakeRegistry()
	reg.Put(registryclient.Artifact{Repository: "user-snapshots/alice_at_example.org", Tag: "done-1"})
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	records, err := o.List(context.Background(), "alice@example.org", "ai4eosc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
}

func TestDelete_RemovesArtifact(t *testing.T) {
	reg := registryclient.NewFakeRegistry()
	reg.Put(registryclient.Artifact{Repository: "user-snapshots/alice_at_example.org", Tag: "done-1"})
	sched := scheduler.NewFake()
	o := snapshot.New(sched, reg, tpl, "secret", "provenance-secret", vos())

	if err := o.Delete(context.Background(), "alice@example.org", "done-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, _ := reg.ListArtifacts(context.Background(), "user-snapshots/alice_at_example.org")
	if len(left) != 0 {
		t.Fatalf("got %d artifacts left, want 0", len(left))
	}
}
