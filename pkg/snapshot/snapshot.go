// Package snapshot implements C6, the snapshot orchestrator: it submits
// a Scheduler batch job pinned to the node hosting a target deployment,
// which itself commits and pushes the image (spec §4.6). PAPI's own code
// never touches image layers; it only renders the batch job template and
// later queries the Registry for listing, deleting and size accounting.
// Grounded on original_source/ai4papi/routers/v1/snapshots/snapshots.py's
// substitution map and Harbor project layout.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/provenance"
	"github.com/ai4os/papi/pkg/registryclient"
	"github.com/ai4os/papi/pkg/scheduler"
	"github.com/ai4os/papi/pkg/template"
)

type Orchestrator struct {
	sched            scheduler.Scheduler
	registry         registryclient.Registry
	fragments        []template.Fragment
	vos              map[string]apitypes.VO
	harborPass       string
	provenanceSecret string
}

func New(sched scheduler.Scheduler, registry registryclient.Registry, jobTemplate, harborRobotPassword, provenanceSecret string, vos map[string]apitypes.VO) *Orchestrator {
	return &Orchestrator{
		sched:            sched,
		registry:         registry,
		fragments:        template.Tokenize(jobTemplate),
		vos:              vos,
		harborPass:       harborRobotPassword,
		provenanceSecret: provenanceSecret,
	}
}

// formattedOwner matches the pack's "auth_info['id'].replace('@', '_at_')"
// convention for turning an email-shaped subject into a Harbor-safe
// repository path segment.
func formattedOwner(owner string) string {
	return strings.ReplaceAll(owner, "@", "_at_")
}

func repositoryFor(owner string) string {
	return "user-snapshots/" + formattedOwner(owner)
}

// pickNode returns the node hosting the job's most relevant allocation,
// preferring a running one (the orchestrator needs the *current* host,
// not wherever the job happened to start).
func pickNode(job *scheduler.Job) (string, error) {
	for _, a := range job.Allocations {
		if a.Status == scheduler.AllocRunning {
			return a.NodeID, nil
		}
	}
	if len(job.Allocations) > 0 {
		return job.Allocations[0].NodeID, nil
	}
	return "", fmt.Errorf("snapshot: target job has no allocation to pin to")
}

// Create resolves target in vo's namespace, checks the per-user snapshot
// storage quota, renders the batch job template and submits it. It
// returns the predicted snapshot ID (jobID_timestamp, spec §3) without
// waiting for the batch job to finish — list/status is read back later
// from the Scheduler and the Registry, exactly as C5 does for ordinary
// deployments.
func (o *Orchestrator) Create(ctx context.Context, subject, ownerName, ownerEmail, vo, target, title, description string) (string, error) {
	v, ok := o.vos[vo]
	if !ok {
		return "", apierrors.BadRequest("unknown VO: " + vo)
	}

	job, err := o.sched.GetJob(ctx, v.Namespace, target)
	if err != nil {
		return "", apierrors.BackendError("failed to look up target deployment", err)
	}
	if job == nil {
		return "", apierrors.UnknownWorkload("deployment", target)
	}
	if job.Owner != subject {
		return "", apierrors.Forbidden("you do not own the target deployment")
	}

	nodeID, err := pickNode(job)
	if err != nil {
		return "", apierrors.BadRequest(err.Error())
	}

	// The batch job itself performs the authoritative filesystem-size
	// check once it can inspect the running container directly (spec
	// §4.6(b)); this is a best-effort early rejection using the target's
	// allocated disk as a proxy, so an obviously oversized deployment
	// fails fast instead of waiting on a batch job submit/run round trip.
	if int64(job.Requested.DiskMB)*1024*1024 > apitypes.MaxSnapshotFilesystemBytes {
		return "", apierrors.BadRequest("too-large")
	}

	used, err := o.registry.SumSizeBytes(ctx, repositoryFor(subject))
	if err != nil {
		return "", apierrors.BackendError("failed to query snapshot storage usage", err)
	}
	if used >= apitypes.SnapshotQuotaBytes {
		return "", apierrors.QuotaExceeded("snapshot-storage", apitypes.SnapshotQuotaBytes, used)
	}

	jobUUID := uuid.New().String()
	now := time.Now()

	var provenanceToken string
	if o.provenanceSecret != "" {
		provenanceToken, err = provenance.Mint(o.provenanceSecret, subject, vo, jobUUID)
		if err != nil {
			return "", apierrors.Internal(fmt.Errorf("mint provenance token: %w", err))
		}
	}

	vars := template.NewBuilder().
		SetSystem("PROVENANCE_TOKEN", provenanceToken).
		SetSystem("JOB_UUID", jobUUID).
		SetSystem("OWNER", subject).
		SetSystem("OWNER_NAME", ownerName).
		SetSystem("OWNER_EMAIL", ownerEmail).
		SetSystem("NAMESPACE", v.Namespace).
		SetSystem("HOSTNAME", jobUUID).
		SetSystem("TARGET_JOB_ID", target).
		SetSystem("TARGET_NODE_ID", nodeID).
		SetSystem("FORMATTED_OWNER", formattedOwner(subject)).
		SetSystem("TITLE", title).
		SetSystem("DESCRIPTION", description).
		SetSystem("SNAPSHOT_DATE", now.Format("2006-01-02 15:04:05")).
		SetSystem("TIMESTAMP", fmt.Sprintf("%d", now.Unix())).
		SetSystem("HARBOR_ROBOT_PASSWORD", o.harborPass)

	rendered, err := template.Render(o.fragments, vars.Map())
	if err != nil {
		return "", apierrors.Internal(fmt.Errorf("render snapshot job template: %w", err))
	}

	schedID, err := o.sched.Submit(ctx, v.Namespace, rendered)
	if err != nil {
		return "", apierrors.BackendError(err.Error(), err)
	}

	return fmt.Sprintf("%s_%d", schedID, now.Unix()), nil
}

// List merges completed snapshots read from the Registry with snapshot
// batch jobs still in flight on the Scheduler, the same two-source merge
// the original source performs.
func (o *Orchestrator) List(ctx context.Context, subject, namespace string) ([]apitypes.SnapshotRecord, error) {
	var out []apitypes.SnapshotRecord

	artifacts, err := o.registry.ListArtifacts(ctx, repositoryFor(subject))
	if err != nil {
		return nil, apierrors.BackendError("failed to list snapshots", err)
	}
	for _, a := range artifacts {
		out = append(out, apitypes.SnapshotRecord{
			SnapshotID: a.Tag,
			Owner:      subject,
			ImageTag:   a.Tag,
			Title:      a.Labels["TITLE"],
			SizeBytes:  a.SizeBytes,
			Status:     "completed",
		})
	}

	jobs, err := o.sched.ListJobs(ctx, scheduler.FilterOpt{Namespace: namespace, Owner: subject})
	if err != nil {
		return nil, apierrors.BackendError("failed to list snapshot jobs", err)
	}
	for _, j := range jobs {
		if !strings.HasPrefix(j.Name, "snapshot") {
			continue
		}
		out = append(out, apitypes.SnapshotRecord{
			SnapshotID: j.ID,
			Owner:      subject,
			Status:     "in-progress",
		})
	}
	return out, nil
}

func (o *Orchestrator) Delete(ctx context.Context, subject, snapshotID string) error {
	if err := o.registry.DeleteArtifact(ctx, repositoryFor(subject), snapshotID); err != nil {
		return apierrors.BackendError("failed to delete snapshot", err)
	}
	return nil
}
