package deployment

import (
	"sort"

	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/scheduler"
)

// selectAllocation picks the allocation that best represents a job's
// current state, following original_source/ai4papi/nomad/common.py's
// get_deployment tie-break: sort by recency (most recent first), then
// prefer "unknown" over "running" over whatever is most recent. The
// "unknown" preference exists so a node that briefly lost contact does
// not show the job as freshly restarted once the network heals and a
// leftover reallocation races the original allocation back into view.
func selectAllocation(allocs []scheduler.Allocation) *scheduler.Allocation {
	if len(allocs) == 0 {
		return nil
	}
	sorted := make([]scheduler.Allocation, len(allocs))
	copy(sorted, allocs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreateTime.After(sorted[j].CreateTime)
	})

	if idx := indexOfStatus(sorted, scheduler.AllocUnknown); idx >= 0 {
		return &sorted[idx]
	}
	if idx := indexOfStatus(sorted, scheduler.AllocRunning); idx >= 0 {
		return &sorted[idx]
	}
	return &sorted[0]
}

func indexOfStatus(allocs []scheduler.Allocation, status scheduler.AllocStatus) int {
	for i, a := range allocs {
		if a.Status == status {
			return i
		}
	}
	return -1
}

// deriveStatus projects Scheduler-level job/allocation state into the
// fixed user-facing status table from spec §4.5.
func deriveStatus(job *scheduler.Job, kind apitypes.Kind) (apitypes.Status, string) {
	if job.Dead {
		if job.UserDeleted {
			return apitypes.StatusDeleted, ""
		}
		if len(job.Allocations) == 0 {
			if hasFailedPlacement(job) {
				return apitypes.StatusError, placementFailureMessage(job)
			}
			return apitypes.StatusDeleted, ""
		}
		// The job went dead on its own — a batch allocation ran to
		// completion, or a restartable one exhausted its retries — not
		// because anyone stopped it. Project the same way a live job's
		// allocation would be projected, so "main dead exit=0 (batch
		// kind)" still reaches `complete` and a failed main task still
		// reaches `error` instead of collapsing into `deleted`.
		return statusFromAllocation(selectAllocation(job.Allocations), kind)
	}

	alloc := selectAllocation(job.Allocations)
	if alloc == nil {
		return apitypes.StatusQueued, ""
	}
	return statusFromAllocation(alloc, kind)
}

func statusFromAllocation(alloc *scheduler.Allocation, kind apitypes.Kind) (apitypes.Status, string) {
	switch alloc.Status {
	case scheduler.AllocPending:
		return apitypes.StatusStarting, ""
	case scheduler.AllocUnknown:
		return apitypes.StatusDown, ""
	case scheduler.AllocFailed:
		return apitypes.StatusError, lastTaskMessage(alloc, "main")
	case scheduler.AllocComplete:
		if kind.IsBatch() {
			return apitypes.StatusComplete, ""
		}
		return apitypes.StatusError, lastTaskMessage(alloc, "main")
	case scheduler.AllocRunning:
		main, ok := alloc.Tasks["main"]
		if ok && main.Dead && main.ExitCode != 0 {
			return apitypes.StatusError, main.LastMessage
		}
		return apitypes.StatusRunning, ""
	default:
		return apitypes.StatusError, lastTaskMessage(alloc, "main")
	}
}

func lastTaskMessage(alloc *scheduler.Allocation, taskName string) string {
	if alloc == nil {
		return ""
	}
	t, ok := alloc.Tasks[taskName]
	if !ok {
		return ""
	}
	return t.LastMessage
}

func hasFailedPlacement(job *scheduler.Job) bool {
	for _, e := range job.Evaluations {
		if e.FailedPlacements != "" {
			return true
		}
	}
	return false
}

func placementFailureMessage(job *scheduler.Job) string {
	for _, e := range job.Evaluations {
		if e.FailedPlacements != "" {
			return e.FailedPlacements
		}
	}
	return "failed to place"
}
