package apitypes

import "time"

// NodeStatus is the projected per-node status from spec §4.9, which
// distinguishes true failures from transient network partitions.
type NodeStatus string

const (
	NodeReady      NodeStatus = "ready"
	NodeIneligible NodeStatus = "ineligible"
	NodeFailing    NodeStatus = "failing"
	NodeLost       NodeStatus = "lost"
	NodeReschedule NodeStatus = "rescheduling"
)

// NodeSnapshot is one node's projection in C9's live data plane.
type NodeSnapshot struct {
	ID           string         `json:"id"`
	Status       NodeStatus     `json:"status"`
	PoolTags     []string       `json:"pool_tags,omitempty"`
	Capacity     Resources      `json:"capacity"`
	Reservations Resources      `json:"reservations"`
	GPUModels    map[string]int `json:"gpu_models,omitempty"`
}

// VOUsage is the aggregated capacity/usage for one VO.
type VOUsage struct {
	VO           string    `json:"vo"`
	Capacity     Resources `json:"capacity"`
	Used         Resources `json:"used"`
	ReadyNodes   int       `json:"ready_nodes"`
	Ineligible   int       `json:"ineligible_nodes"`
	// Reallocated is the cumulative count of allocations Nomad has replaced
	// with a new one, for this VO's jobs, since the aggregator started
	// polling — not a point-in-time gauge of nodes currently rescheduling.
	Reallocated  int       `json:"reallocations"`
}

// ClusterSnapshot is the latest in-memory stats view served under
// /v1/stats/cluster.
type ClusterSnapshot struct {
	Nodes     []NodeSnapshot      `json:"nodes"`
	ByVO      map[string]VOUsage  `json:"by_vo"`
	UpdatedAt time.Time           `json:"updated_at"`
	Stale     bool                `json:"stale"`
}

// DailySummary is one pre-computed historical record read from disk by the
// historical data plane.
type DailySummary struct {
	Date time.Time              `json:"date"`
	User string                 `json:"user,omitempty"`
	VO   string                 `json:"vo,omitempty"`
	Totals Resources            `json:"totals"`
}
