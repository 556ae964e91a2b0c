// Package tryme implements C7, the try-me controller: short-lived,
// anonymous-sandbox deployments with a tight resource envelope, a 10
// minute wall-time cap, and global per-user/per-VO concurrency limits
// (spec §4.7). Try-me jobs are always batch-kind, never restarted, and
// share C3/C5's rendering and submission machinery under a distinct
// template and a lower priority band — grounded on
// original_source/ai4papi/routers/v1/try_me/nomad.py, which deploys
// every try-me job into one fixed VO/namespace with a "try"-prefixed job
// name.
package tryme

import (
	"context"
	"time"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/deployment"
	"github.com/ai4os/papi/pkg/scheduler"
)

// MaxWallTime is the hard 10-minute cap from spec §4.7.
const MaxWallTime = 10 * time.Minute

// MaxResources is the small fixed CPU-only envelope every try-me job is
// capped at, regardless of what a caller requests.
var MaxResources = apitypes.Resources{CPUCores: 2, MemoryMB: 2000, DiskMB: 2000}

// jobNamePrefix matches the source's "try"-prefixed Nomad job naming
// convention, used both to submit and to recognize try-me jobs when
// counting concurrency.
const jobNamePrefix = "try-me"

// Controller wraps a deployment.Controller with try-me's tighter caps and
// concurrency limits. It does not reimplement rendering or submission;
// every Create call delegates to the wrapped controller once admission
// passes.
type Controller struct {
	inner       *deployment.Controller
	sched       scheduler.Scheduler
	vo          string // try-me jobs always land in one fixed VO (spec/source: AI4EOSC)
	namespace   string
	perUserCap  int
	perVOCap    int
}

func New(inner *deployment.Controller, sched scheduler.Scheduler, vo, namespace string, perUserCap, perVOCap int) *Controller {
	return &Controller{inner: inner, sched: sched, vo: vo, namespace: namespace, perUserCap: perUserCap, perVOCap: perVOCap}
}

// CreateInput narrows deployment.CreateInput to what a try-me request
// may set: no hardware selection (always MaxResources, CPU-only), no
// persisted title beyond what the catalog item already carries.
type CreateInput struct {
	Subject    string
	OwnerName  string
	OwnerEmail string
	Name       string
	Config     apitypes.UserConfig
}

// Create enforces the concurrency caps and then delegates to the inner
// deployment controller with try-me's fixed kind, VO and resource
// envelope (spec §4.7: "CPU-only, hard-capped at a small fixed resource
// envelope").
func (c *Controller) Create(ctx context.Context, in CreateInput) (*apitypes.CreateResponse, error) {
	perUser, perVO, err := c.counts(ctx, in.Subject)
	if err != nil {
		return nil, err
	}
	if c.perUserCap > 0 && perUser >= c.perUserCap {
		return nil, apierrors.QuotaExceeded("tryme-concurrency", c.perUserCap, perUser)
	}
	if c.perVOCap > 0 && perVO >= c.perVOCap {
		return nil, apierrors.QuotaExceeded("tryme-concurrency", c.perVOCap, perVO)
	}

	return c.inner.Create(ctx, deployment.CreateInput{
		Subject:            in.Subject,
		OwnerName:          in.OwnerName,
		OwnerEmail:         in.OwnerEmail,
		VO:                 c.vo,
		Kind:               apitypes.KindTryMe,
		Name:               in.Name,
		Config:             in.Config,
		Resources:          MaxResources,
		MaxWallTimeSeconds:  int(MaxWallTime.Seconds()),
	})
}

// counts returns the caller's live try-me job count and the VO-wide live
// try-me job count, with one ListJobs scan of the namespace (a second,
// owner-filtered call would be redundant since the unfiltered scan
// already carries each job's owner).
func (c *Controller) counts(ctx context.Context, subject string) (perUser, perVO int, err error) {
	jobs, err := c.sched.ListJobs(ctx, scheduler.FilterOpt{Namespace: c.namespace})
	if err != nil {
		return 0, 0, apierrors.BackendError("failed to list try-me jobs", err)
	}
	for _, j := range jobs {
		if !isTryMeJob(j) {
			continue
		}
		perVO++
		if j.Owner == subject {
			perUser++
		}
	}
	return perUser, perVO, nil
}

func isTryMeJob(j scheduler.Job) bool {
	return len(j.Name) >= len(jobNamePrefix) && j.Name[:len(jobNamePrefix)] == jobNamePrefix
}

// List returns the caller's live try-me deployments.
func (c *Controller) List(ctx context.Context, subject string) ([]apitypes.Deployment, error) {
	return c.inner.List(ctx, subject, c.vo, []apitypes.Kind{apitypes.KindTryMe})
}

func (c *Controller) Delete(ctx context.Context, subject, uuid string) error {
	return c.inner.Delete(ctx, subject, c.vo, uuid)
}
