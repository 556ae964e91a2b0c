package registryclient

import (
	"context"
	"sync"
)

// FakeRegistry is an in-memory Registry for pkg/snapshot tests.
type FakeRegistry struct {
	mu        sync.Mutex
	artifacts map[string][]Artifact // repository -> artifacts
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{artifacts: map[string][]Artifact{}}
}

func (f *FakeRegistry) Put(a Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[a.Repository] = append(f.artifacts[a.Repository], a)
}

func (f *FakeRegistry) ListArtifacts(_ context.Context, repository string) ([]Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Artifact, len(f.artifacts[repository]))
	copy(out, f.artifacts[repository])
	return out, nil
}

func (f *FakeRegistry) DeleteArtifact(_ context.Context, repository, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.artifacts[repository]
	for i, a := range list {
		if a.Tag == tag {
			f.artifacts[repository] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *FakeRegistry) SumSizeBytes(_ context.Context, repository string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, a := range f.artifacts[repository] {
		total += a.SizeBytes
	}
	return total, nil
}

var _ Registry = (*FakeRegistry)(nil)
