// Package stats implements C9, the cluster stats aggregator: a live data
// plane that polls the Scheduler every 30 seconds and projects node and
// per-VO usage into an in-memory snapshot, plus a historical data plane
// that reads pre-computed CSV summaries off disk. Grounded on
// original_source/ai4papi/routers/v1/stats/deployments.py, whose
// get_cluster_stats_bg background task this package's live plane
// replaces with loop.Start, and whose load_stats/get_user_stats this
// package's historical plane replaces with encoding/csv.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/loop"
	"github.com/ai4os/papi/pkg/metrics"
	"github.com/ai4os/papi/pkg/scheduler"
)

// PollInterval matches the source's get_cluster_stats_bg TTL, which the
// comment there says "should be >= than the repeat frequency of the
// thread defined in main.py" — PAPI keeps the two identical.
const PollInterval = 30 * time.Second

// Aggregator owns the live data plane: an atomically-swapped snapshot
// kept current by a background poll loop, matching the source's
// module-level `cluster_stats` global but without the shared mutable
// state (spec's Design Notes: "no global/module-level singletons").
type Aggregator struct {
	sched     scheduler.Scheduler
	namespace map[string]string // VO -> nomad namespace, for per-VO usage folding
	snapshot  atomic.Pointer[apitypes.ClusterSnapshot]

	// seenAllocs and reallocations carry state across polls: Nomad gives us
	// only the allocations a job currently has, so a reallocation (one
	// allocation replaced by another) only shows up as a diff against what
	// the previous poll saw. Both maps are only ever touched from the
	// single poll loop goroutine Run drives, so they need no locking of
	// their own — only the published Snapshot is shared across goroutines.
	seenAllocs    map[string]map[string]struct{} // jobID -> allocation IDs ever observed
	reallocations map[string]int                 // VO -> cumulative reallocation count
}

func New(sched scheduler.Scheduler, namespaceByVO map[string]string) *Aggregator {
	a := &Aggregator{
		sched:         sched,
		namespace:     namespaceByVO,
		seenAllocs:    map[string]map[string]struct{}{},
		reallocations: map[string]int{},
	}
	a.snapshot.Store(&apitypes.ClusterSnapshot{Stale: true})
	return a
}

// Run drives the live data plane until ctx is cancelled, intended to be
// started once from cmd/papi's startup as a background goroutine.
func (a *Aggregator) Run(ctx context.Context) error {
	_, err := loop.Start(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
		a.Poll(ctx)
		return struct{}{}, loop.Continue(PollInterval)
	})
	return err
}

// Poll runs one poll cycle immediately and publishes its result, independent
// of Run's interval. Exported so tests can drive successive polls without
// waiting out PollInterval, and so an operator-triggered refresh could reuse
// the same step later.
func (a *Aggregator) Poll(ctx context.Context) {
	snap, err := a.poll(ctx)
	if err != nil {
		prev := a.snapshot.Load()
		stale := *prev
		stale.Stale = true
		a.snapshot.Store(&stale)
		metrics.RecordClusterSnapshot(stale)
		return
	}
	a.snapshot.Store(snap)
	metrics.RecordClusterSnapshot(*snap)
}

// Snapshot returns the most recently computed cluster view. Stale is set
// whenever the last poll failed, so callers can still serve the previous
// good snapshot while surfacing its staleness (spec §4.9).
func (a *Aggregator) Snapshot() apitypes.ClusterSnapshot {
	return *a.snapshot.Load()
}

func (a *Aggregator) poll(ctx context.Context) (*apitypes.ClusterSnapshot, error) {
	nodes, err := a.sched.ListNodes(ctx)
	if err != nil {
		return nil, apierrors.BackendError("failed to list nodes", err)
	}

	nodeByID := make(map[string]*apitypes.NodeSnapshot, len(nodes))
	out := make([]apitypes.NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		ns := apitypes.NodeSnapshot{
			ID:        n.ID,
			Status:    projectNodeStatus(n),
			Capacity:  n.Capacity,
			GPUModels: n.GPUModels,
		}
		out = append(out, ns)
		nodeByID[n.ID] = &out[len(out)-1]
	}

	byVO := make(map[string]apitypes.VOUsage, len(a.namespace))
	liveJobIDs := make(map[string]struct{})
	for vo, ns := range a.namespace {
		jobs, err := a.sched.ListJobs(ctx, scheduler.FilterOpt{Namespace: ns})
		if err != nil {
			return nil, apierrors.BackendError("failed to list jobs for "+vo, err)
		}
		// Nomad nodes are not partitioned per namespace, so every VO shares
		// the same underlying cluster capacity; only usage is VO-specific.
		// Only ready, eligible nodes count toward capacity (spec §4.9
		// invariant i): a failing or rescheduling node's resources are not
		// schedulable and must not inflate what a VO can place.
		usage := apitypes.VOUsage{VO: vo}
		for _, node := range nodeByID {
			if node.Status != apitypes.NodeReady {
				continue
			}
			usage.Capacity.CPUCores += node.Capacity.CPUCores
			usage.Capacity.MemoryMB += node.Capacity.MemoryMB
			usage.Capacity.DiskMB += node.Capacity.DiskMB
			usage.Capacity.GPUCount += node.Capacity.GPUCount
		}
		for _, j := range jobs {
			if j.Dead {
				continue
			}
			alloc := selectAllocation(j.Allocations)
			if alloc == nil {
				continue
			}
			usage.Used.CPUCores += alloc.Resources.CPUCores
			usage.Used.MemoryMB += alloc.Resources.MemoryMB
			usage.Used.DiskMB += alloc.Resources.DiskMB
			usage.Used.GPUCount += alloc.Resources.GPUCount
		}
		for _, node := range nodeByID {
			switch node.Status {
			case apitypes.NodeReady:
				usage.ReadyNodes++
			case apitypes.NodeIneligible:
				usage.Ineligible++
			}
		}
		for _, j := range jobs {
			liveJobIDs[j.ID] = struct{}{}
		}
		a.countReallocations(vo, jobs)
		usage.Reallocated = a.reallocations[vo]
		byVO[vo] = usage
	}
	a.pruneSeenAllocs(liveJobIDs)

	return &apitypes.ClusterSnapshot{Nodes: out, ByVO: byVO, Stale: false}, nil
}

// countReallocations diffs jobs' current allocation IDs against the last
// poll's, adding one to the VO's running total for every allocation ID that
// wasn't there before. A job seen for the first time just seeds its
// baseline — its initial allocations are placements, not reallocations.
func (a *Aggregator) countReallocations(vo string, jobs []scheduler.Job) {
	for _, j := range jobs {
		current := make(map[string]struct{}, len(j.Allocations))
		for _, al := range j.Allocations {
			current[al.ID] = struct{}{}
		}
		if prev, known := a.seenAllocs[j.ID]; known {
			for id := range current {
				if _, ok := prev[id]; !ok {
					a.reallocations[vo]++
				}
			}
		}
		a.seenAllocs[j.ID] = current
	}
}

// pruneSeenAllocs drops tracked allocation state for jobs that no longer
// exist, so a long-running aggregator doesn't grow seenAllocs without bound
// as deployments come and go.
func (a *Aggregator) pruneSeenAllocs(liveJobIDs map[string]struct{}) {
	for jobID := range a.seenAllocs {
		if _, ok := liveJobIDs[jobID]; !ok {
			delete(a.seenAllocs, jobID)
		}
	}
}

// projectNodeStatus distinguishes a true failure from a transient network
// partition (spec §4.9), matching the source's allocation-reordering
// comment that an "unknown" status means "the node has lost connection."
func projectNodeStatus(n scheduler.Node) apitypes.NodeStatus {
	switch n.Status {
	case "down":
		return apitypes.NodeLost
	case "disconnected":
		return apitypes.NodeFailing
	case "initializing":
		return apitypes.NodeReschedule
	}
	if !n.Eligible {
		return apitypes.NodeIneligible
	}
	return apitypes.NodeReady
}

// selectAllocation applies the same tie-break the source's
// get_proper_allocation function does: prefer unknown (lost node, avoid
// the confusing temporary reallocation) over running over most-recent.
func selectAllocation(allocs []scheduler.Allocation) *scheduler.Allocation {
	if len(allocs) == 0 {
		return nil
	}
	var unknown, running, latest *scheduler.Allocation
	for i := range allocs {
		a := &allocs[i]
		if a.Status == scheduler.AllocUnknown {
			unknown = a
		}
		if a.Status == scheduler.AllocRunning {
			running = a
		}
		if latest == nil || a.CreateTime.After(latest.CreateTime) {
			latest = a
		}
	}
	switch {
	case unknown != nil:
		return unknown
	case running != nil:
		return running
	default:
		return latest
	}
}
