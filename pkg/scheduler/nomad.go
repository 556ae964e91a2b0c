package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	nomadapi "github.com/hashicorp/nomad/api"

	"github.com/ai4os/papi/pkg/apitypes"
)

// NomadScheduler implements Scheduler against a real Nomad cluster using
// the official HashiCorp client, configured from the NOMAD_ADDR/
// NOMAD_CACERT/NOMAD_CLIENT_CERT/NOMAD_CLIENT_KEY environment variables
// (spec §6), with a bounded per-call timeout (spec §5, default 15s).
type NomadScheduler struct {
	client  *nomadapi.Client
	timeout time.Duration
}

// NewNomadScheduler builds a client from the ambient NOMAD_* environment,
// matching python-nomad's zero-config constructor used by the original
// implementation (original_source/ai4papi/nomad/common.py: `nomad.Nomad()`).
func NewNomadScheduler(timeout time.Duration) (*NomadScheduler, error) {
	cfg := nomadapi.DefaultConfig() // reads NOMAD_ADDR and friends itself
	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("scheduler: building nomad client: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NomadScheduler{client: client, timeout: timeout}, nil
}

func (n *NomadScheduler) ctxWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, n.timeout)
}

func (n *NomadScheduler) Submit(ctx context.Context, namespace, renderedSpec string) (string, error) {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	job, err := n.client.Jobs().ParseHCLOpts(&nomadapi.JobsParseRequest{
		JobHCL:       renderedSpec,
		Canonicalize: true,
	})
	if err != nil {
		return "", fmt.Errorf("scheduler: parse job spec: %w", err)
	}
	job.Namespace = &namespace

	resp, _, err := n.client.Jobs().RegisterOpts(job, nil, (&nomadapi.WriteOptions{Namespace: namespace}).WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("scheduler: register job: %w", err)
	}
	_ = resp
	if job.ID == nil {
		return "", fmt.Errorf("scheduler: registered job has no ID")
	}
	return *job.ID, nil
}

func (n *NomadScheduler) GetJob(ctx context.Context, namespace, jobID string) (*Job, error) {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	qo := (&nomadapi.QueryOptions{Namespace: namespace}).WithContext(ctx)
	j, _, err := n.client.Jobs().Info(jobID, qo)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduler: get job %s: %w", jobID, err)
	}

	allocs, _, err := n.client.Jobs().Allocations(jobID, true, qo)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list allocations for %s: %w", jobID, err)
	}
	evals, _, err := n.client.Jobs().Evaluations(jobID, qo)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list evaluations for %s: %w", jobID, err)
	}

	return toJob(j, allocs, evals), nil
}

func (n *NomadScheduler) ListJobs(ctx context.Context, opt FilterOpt) ([]Job, error) {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	filter := `Status != "dead"`
	if opt.Owner != "" {
		filter = fmt.Sprintf(`%s and Meta is not empty and Meta.owner == %q`, filter, opt.Owner)
	}
	qo := (&nomadapi.QueryOptions{Namespace: opt.Namespace, Filter: filter}).WithContext(ctx)

	stubs, _, err := n.client.Jobs().List(qo)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list jobs: %w", err)
	}

	jobs := make([]Job, 0, len(stubs))
	for _, s := range stubs {
		j, err := n.GetJob(ctx, opt.Namespace, s.ID)
		if err != nil {
			return nil, err
		}
		if j != nil {
			jobs = append(jobs, *j)
		}
	}
	return jobs, nil
}

func (n *NomadScheduler) Purge(ctx context.Context, namespace, jobID string, purge bool) error {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	wo := (&nomadapi.WriteOptions{Namespace: namespace}).WithContext(ctx)
	_, _, err := n.client.Jobs().DeregisterOpts(jobID, &nomadapi.DeregisterOptions{Purge: purge}, wo)
	if err != nil {
		return fmt.Errorf("scheduler: deregister job %s: %w", jobID, err)
	}
	return nil
}

func (n *NomadScheduler) ListNodes(ctx context.Context) ([]Node, error) {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	stubs, _, err := n.client.Nodes().List((&nomadapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scheduler: list nodes: %w", err)
	}

	nodes := make([]Node, 0, len(stubs))
	for _, s := range stubs {
		node, err := n.GetNode(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

func (n *NomadScheduler) GetNode(ctx context.Context, nodeID string) (*Node, error) {
	ctx, cancel := n.ctxWithTimeout(ctx)
	defer cancel()

	node, _, err := n.client.Nodes().Info(nodeID, (&nomadapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("scheduler: get node %s: %w", nodeID, err)
	}
	return toNode(node), nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "not found")
}

func toNode(node *nomadapi.Node) *Node {
	out := &Node{
		ID:         node.ID,
		Eligible:   node.SchedulingEligibility == nomadapi.NodeSchedulingEligible,
		Status:     node.Status,
		Meta:       node.Meta,
		Datacenter: node.Datacenter,
		GPUModels:  map[string]int{},
	}
	if node.NodeResources != nil {
		if cpu := node.NodeResources.Cpu; cpu.CpuShares > 0 {
			out.Capacity.CPUCores = int(cpu.CpuShares) / 1000
		}
		if mem := node.NodeResources.Memory; mem.MemoryMB > 0 {
			out.Capacity.MemoryMB = int(mem.MemoryMB)
		}
		if disk := node.NodeResources.Disk; disk.DiskMB > 0 {
			out.Capacity.DiskMB = int(disk.DiskMB)
		}
		for _, d := range node.NodeResources.Devices {
			if d.Type == "gpu" {
				out.Capacity.GPUCount += len(d.Instances)
				out.GPUModels[d.Name] += len(d.Instances)
			}
		}
	}
	return out
}

func toJob(j *nomadapi.Job, allocs []*nomadapi.AllocationListStub, evals []*nomadapi.Evaluation) *Job {
	out := &Job{
		ID:   *j.ID,
		Name: *j.Name,
		Dead: j.Status != nil && *j.Status == "dead",
		// Job.Stop is Nomad's own marker for "an operator/API caller issued
		// `job stop`" (PAPI's Purge), as opposed to a job that went dead
		// purely because its allocations ran to completion or failure — the
		// distinction deriveStatus needs to tell "deleted" apart from
		// "complete"/"error" for a dead batch job.
		UserDeleted: j.Stop != nil && *j.Stop,
	}
	if j.Namespace != nil {
		out.Namespace = *j.Namespace
	}
	if j.Meta != nil {
		out.Owner = j.Meta["owner"]
	}
	if j.SubmitTime != nil {
		out.SubmitTime = time.Unix(0, *j.SubmitTime)
	}
	if len(j.TaskGroups) > 0 {
		tg := j.TaskGroups[0]
		for _, t := range tg.Tasks {
			if t.Name == "main" && t.Resources != nil {
				out.Requested.CPUCores = derefInt(t.Resources.Cores)
				out.Requested.MemoryMB = derefInt(t.Resources.MemoryMB)
				for _, d := range t.Resources.Devices {
					if d.Name == "gpu" {
						out.Requested.GPUCount += derefInt(d.Count)
					}
				}
			}
		}
	}

	for _, e := range evals {
		out.Evaluations = append(out.Evaluations, Evaluation{
			ID:               e.ID,
			FailedPlacements: fmt.Sprintf("%v", e.FailedTGAllocs),
			CreateTime:       time.Unix(0, e.CreateTime),
		})
	}

	for _, a := range allocs {
		alloc := Allocation{
			ID:         a.ID,
			NodeID:     a.NodeID,
			CreateTime: time.Unix(0, a.CreateTime),
			Tasks:      map[string]TaskState{},
		}
		switch a.ClientStatus {
		case "pending":
			alloc.Status = AllocPending
		case "running":
			alloc.Status = AllocRunning
		case "complete":
			alloc.Status = AllocComplete
		case "failed":
			alloc.Status = AllocFailed
		case "unknown":
			alloc.Status = AllocUnknown
		default:
			alloc.Status = AllocStatus(a.ClientStatus)
		}
		for name, ts := range a.TaskStates {
			st := TaskState{Name: name, Dead: ts.State == "dead"}
			if len(ts.Events) > 0 {
				last := ts.Events[len(ts.Events)-1]
				st.LastMessage = last.Message
				st.ExitCode = last.ExitCode
			}
			alloc.Tasks[name] = st
		}
		out.Allocations = append(out.Allocations, alloc)
	}
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
