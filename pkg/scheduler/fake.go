package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Scheduler used by domain-package tests, so C2/C5/
// C6/C7/C9 logic can be exercised without a live Nomad cluster. It is not
// behind a build tag: the teacher keeps its own mocks (pkg/db/mocks,
// pkg/domain/run/k8s/mock) alongside production code in the same manner.
type Fake struct {
	mu    sync.Mutex
	jobs  map[string]Job // key: namespace+"/"+jobID
	nodes map[string]Node

	// SubmitErr, when set, is returned by every Submit call.
	SubmitErr error
}

func NewFake() *Fake {
	return &Fake{jobs: map[string]Job{}, nodes: map[string]Node{}}
}

func key(namespace, id string) string { return namespace + "/" + id }

func (f *Fake) PutJob(j Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[key(j.Namespace, j.ID)] = j
}

func (f *Fake) PutNode(n Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.ID] = n
}

func (f *Fake) Submit(_ context.Context, namespace, renderedSpec string) (string, error) {
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("fake-job-%d", len(f.jobs)+1)
	f.jobs[key(namespace, id)] = Job{ID: id, Namespace: namespace, Name: id}
	return id, nil
}

func (f *Fake) GetJob(_ context.Context, namespace, jobID string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[key(namespace, jobID)]
	if !ok {
		return nil, nil
	}
	cp := j
	return &cp, nil
}

func (f *Fake) ListJobs(_ context.Context, opt FilterOpt) ([]Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Job
	for _, j := range f.jobs {
		if opt.Namespace != "" && j.Namespace != opt.Namespace {
			continue
		}
		if opt.Owner != "" && j.Owner != opt.Owner {
			continue
		}
		if j.Dead {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (f *Fake) Purge(_ context.Context, namespace, jobID string, purge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(namespace, jobID)
	j, ok := f.jobs[k]
	if !ok {
		return fmt.Errorf("scheduler: job not found: %s", jobID)
	}
	if purge {
		delete(f.jobs, k)
		return nil
	}
	j.Dead = true
	j.UserDeleted = true
	f.jobs[k] = j
	return nil
}

func (f *Fake) ListNodes(_ context.Context) ([]Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *Fake) GetNode(_ context.Context, nodeID string) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("scheduler: node not found: %s", nodeID)
	}
	cp := n
	return &cp, nil
}

var _ Scheduler = (*Fake)(nil)
