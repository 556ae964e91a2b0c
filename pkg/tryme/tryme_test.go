package tryme_test

import (
	"context"
	"testing"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/deployment"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/tryme"
)

const (
	vo        = "training.egi.eu"
	namespace = "tutorials"
)

func newController(t *testing.T, perUserCap, perVOCap int) (*tryme.Controller, *scheduler.Fake) {
	t.Helper()
	sched := scheduler.NewFake()
	inner := deployment.New(
		nil, nil, nil, sched,
		map[string]apitypes.VO{vo: {Namespace: namespace, Domain: "example.org"}},
		map[apitypes.Kind]deployment.KindProfile{}, // no profile for try-me: proves delegation by its failure mode
		registryclient.AllowList{"ai4os"},
		func() string { return "fixed-uuid" },
	)
	return tryme.New(inner, sched, vo, namespace, perUserCap, perVOCap), sched
}

func putTryMeJob(f *scheduler.Fake, id, owner string) {
	f.PutJob(scheduler.Job{ID: id, Namespace: namespace, Owner: owner, Name: "try-me-" + id})
}

func TestCreate_RejectsWhenPerUserCapReached(t *testing.T) {
	c, sched := newController(t, 1, 10)
	putTryMeJob(sched, "j1", "alice")

	_, err := c.Create(context.Background(), tryme.CreateInput{Subject: "alice", Name: "sandbox"})
	if err == nil || !apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want quota-exceeded", err)
	}
}

func TestCreate_DoesNotCountOtherUsersAgainstPerUserCap(t *testing.T) {
	c, sched := newController(t, 1, 10)
	putTryMeJob(sched, "j1", "bob")

	// alice has zero live try-me jobs; bob's job must not count against her.
	_, err := c.Create(context.Background(), tryme.CreateInput{Subject: "alice", Name: "sandbox"})
	if err == nil || apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want delegation to proceed past the per-user cap", err)
	}
	// Proceeding means it reached the inner controller and failed there
	// instead (no try-me KindProfile registered in this test's wiring).
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("got %v, want bad-request from the inner controller's unsupported-kind check", err)
	}
}

func TestCreate_RejectsWhenPerVOCapReached(t *testing.T) {
	c, sched := newController(t, 10, 2)
	putTryMeJob(sched, "j1", "bob")
	putTryMeJob(sched, "j2", "carol")

	_, err := c.Create(context.Background(), tryme.CreateInput{Subject: "alice", Name: "sandbox"})
	if err == nil || !apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want quota-exceeded once the VO-wide cap is reached", err)
	}
}

func TestCreate_IgnoresNonTryMeJobsWhenCounting(t *testing.T) {
	c, sched := newController(t, 1, 1)
	sched.PutJob(scheduler.Job{ID: "other", Namespace: namespace, Owner: "alice", Name: "module-other"})

	_, err := c.Create(context.Background(), tryme.CreateInput{Subject: "alice", Name: "sandbox"})
	if err == nil || apierrors.Is(err, apierrors.KindQuotaExceeded) {
		t.Fatalf("got %v, want non-try-me jobs to be excluded from the count", err)
	}
}

func TestCreate_UsesFixedResourceEnvelope(t *testing.T) {
	c, _ := newController(t, 10, 10)
	_, err := c.Create(context.Background(), tryme.CreateInput{
		Subject: "alice",
		Name:    "sandbox",
		Config:  apitypes.UserConfig{},
	})
	// No try-me profile is registered, so this always fails past admission;
	// the point of this test is that Create never panics when translating
	// CreateInput into deployment.CreateInput with tryme.MaxResources.
	if err == nil {
		t.Fatalf("expected an error since no try-me KindProfile is registered")
	}
}
