package catalog_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ai4os/papi/pkg/apierrors"
	"github.com/ai4os/papi/pkg/apitypes"
	"github.com/ai4os/papi/pkg/catalog"
	"github.com/ai4os/papi/pkg/registryclient"
)

// fakeTree is an in-memory catalog.Tree double, keyed by file path.
type fakeTree struct {
	files map[string]string
}

func (f fakeTree) ReadFile(path string) ([]byte, error) {
	v, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("fakeTree: no such file %q", path)
	}
	return []byte(v), nil
}

const moduleListYAML = `
- name: cool-module
  url: https://example.org/cool-module.git
  branch: main
- name: bad-image-module
  url: https://example.org/bad-image-module.git
  branch: main
- name: stale-schema-module
  url: https://example.org/stale-schema-module.git
  branch: main
`

const coolModuleMetadata = `
version: "2"
title: Cool Module
summary: does cool things
docker_image: ai4os/cool-module:latest
license: MIT
`

const badImageModuleMetadata = `
version: "2"
title: Bad Image Module
docker_image: some-random-org/sketchy:latest
`

const staleSchemaModuleMetadata = `
version: "1"
title: Stale Schema Module
docker_image: ai4os/stale:latest
`

func fixtureFetcher() catalog.Fetcher {
	trees := map[string]fakeTree{
		"https://example.org/modules.git": {files: map[string]string{
			"module-list.yaml": moduleListYAML,
		}},
		"https://example.org/cool-module.git": {files: map[string]string{
			"metadata.yaml": coolModuleMetadata,
		}},
		"https://example.org/bad-image-module.git": {files: map[string]string{
			"metadata.yaml": badImageModuleMetadata,
		}},
		"https://example.org/stale-schema-module.git": {files: map[string]string{
			"metadata.yaml": staleSchemaModuleMetadata,
		}},
	}
	return func(_ context.Context, url, _ string) (catalog.Tree, error) {
		t, ok := trees[url]
		if !ok {
			return nil, fmt.Errorf("no fixture tree for %q", url)
		}
		return t, nil
	}
}

func newResolver() *catalog.Resolver {
	sources := []catalog.Source{
		{Kind: apitypes.KindModule, URL: "https://example.org/modules.git", Branch: "main", ModuleListPath: "module-list.yaml"},
	}
	allow := registryclient.AllowList{"ai4os"}
	return catalog.New(sources, allow, fixtureFetcher(), nil)
}

func TestList_OnlyReturnsAllowListedValidItems(t *testing.T) {
	r := newResolver()
	names, err := r.List(context.Background(), apitypes.KindModule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "cool-module" {
		t.Fatalf("got %v, want [cool-module]", names)
	}
}

func TestMetadata_ReturnsFullRecordForValidItem(t *testing.T) {
	r := newResolver()
	item, err := r.Metadata(context.Background(), apitypes.KindModule, "cool-module")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Title != "Cool Module" || item.DockerImage != "ai4os/cool-module:latest" {
		t.Fatalf("got %+v", item)
	}
}

func TestMetadata_UnknownItemIsUnknownWorkload(t *testing.T) {
	r := newResolver()
	_, err := r.Metadata(context.Background(), apitypes.KindModule, "bad-image-module")
	if !apierrors.Is(err, apierrors.KindUnknownWorkload) {
		t.Fatalf("got %v, want unknown-workload", err)
	}
}

func TestRefresh_ClearsCacheForKind(t *testing.T) {
	r := newResolver()
	if _, err := r.List(context.Background(), apitypes.KindModule); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.Refresh(apitypes.KindModule, "")
	names, err := r.List(context.Background(), apitypes.KindModule)
	if err != nil {
		t.Fatalf("unexpected error after refresh: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("got %v, want re-ingested [cool-module]", names)
	}
}

func TestDetail_ReturnsTrimmedSummaries(t *testing.T) {
	r := newResolver()
	summaries, err := r.Detail(context.Background(), apitypes.KindModule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "cool-module" || summaries[0].Summary != "does cool things" {
		t.Fatalf("got %+v", summaries)
	}
}
