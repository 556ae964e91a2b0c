// Package scheduler defines PAPI's thin interface onto the backing
// orchestrator (spec.md calls it "the Scheduler": a job-submit/job-status/
// job-stop HTTP API, concretely HashiCorp Nomad per the spec's own
// NOMAD_* environment variables). Everything in C2, C5, C6, C7 and C9 talks
// to the cluster exclusively through this interface, never through a
// concrete Nomad type, so tests can substitute the in-memory Fake.
package scheduler

import (
	"context"
	"time"

	"github.com/ai4os/papi/pkg/apitypes"
)

// AllocStatus mirrors the handful of Nomad client-status values PAPI's
// status projection (spec §4.5) actually distinguishes.
type AllocStatus string

const (
	AllocPending AllocStatus = "pending"
	AllocRunning AllocStatus = "running"
	AllocComplete AllocStatus = "complete"
	AllocFailed  AllocStatus = "failed"
	AllocUnknown AllocStatus = "unknown" // node lost contact: surfaced as "down"
)

// TaskState is the terminal state of one task inside an allocation.
type TaskState struct {
	Name       string
	Dead       bool
	ExitCode   int
	LastMessage string
	StartedAt  time.Time
}

// Allocation is PAPI's trimmed view of a Nomad allocation.
type Allocation struct {
	ID         string
	NodeID     string
	Status     AllocStatus
	CreateTime time.Time
	Tasks      map[string]TaskState
	Resources  apitypes.Resources
}

// Job is PAPI's trimmed view of a Nomad job plus its most relevant
// allocation, sufficient to drive the spec §4.5 status table.
type Job struct {
	ID          string
	Namespace   string
	Name        string
	Owner       string
	Dead        bool
	UserDeleted bool
	Allocations []Allocation
	Evaluations []Evaluation
	Requested   apitypes.Resources
	SubmitTime  time.Time
	NodeMeta    map[string]map[string]string // nodeID -> meta, for ${meta.*} resolution
}

// Evaluation is trimmed from Nomad's evaluation object; used to surface
// placement failures for jobs that never got an allocation.
type Evaluation struct {
	ID                 string
	FailedPlacements   string
	CreateTime         time.Time
}

// Node is PAPI's trimmed view of a Nomad client node, used by C9.
type Node struct {
	ID                   string
	Eligible             bool
	Status               string // ready|down|disconnected|initializing
	Meta                 map[string]string
	Datacenter           string
	Capacity             apitypes.Resources
	GPUModels            map[string]int
}

// FilterOpt narrows ListJobs to one VO namespace and/or owner.
type FilterOpt struct {
	Namespace string
	Owner     string
}

// Scheduler is the interface every domain package uses to reach the
// backing orchestrator.
type Scheduler interface {
	// Submit parses and registers a rendered job spec. Returns the
	// Scheduler's own job ID (PAPI always sets it to the JOB_UUID it
	// generated, but the Scheduler is authoritative).
	Submit(ctx context.Context, namespace string, renderedSpec string) (jobID string, err error)

	// GetJob fetches one job by ID; returns (nil, nil) if absent so
	// callers can distinguish "not found" from a transport error.
	GetJob(ctx context.Context, namespace, jobID string) (*Job, error)

	// ListJobs lists jobs in a namespace, optionally filtered by owner.
	ListJobs(ctx context.Context, opt FilterOpt) ([]Job, error)

	// Purge stops and removes a job. purge=true also removes it from the
	// Scheduler's history (spec §4.5: required for jobs stuck in any
	// state including queued/running/dead).
	Purge(ctx context.Context, namespace, jobID string, purge bool) error

	// ListNodes lists cluster nodes for C9's live stats plane.
	ListNodes(ctx context.Context) ([]Node, error)

	// GetNode fetches one node's detail (meta, datacenter), used to
	// resolve ${meta.domain}-style endpoint placeholders.
	GetNode(ctx context.Context, nodeID string) (*Node, error)
}
