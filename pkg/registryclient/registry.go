package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Artifact is a trimmed view of one pushed image tag, sufficient for C6's
// list/delete/size-accounting operations (spec §4.6). The shape mirrors
// what the pack's original source reads off a Harbor artifact: a tag
// name, its label set (provenance), and its size.
type Artifact struct {
	Repository string
	Tag        string
	SizeBytes  int64
	Labels     map[string]string
}

// Registry is PAPI's view of the image registry's query-only surface —
// the actual commit+push happens inside the Scheduler-native batch job
// (spec §4.6), so PAPI itself never writes image layers, only reads
// metadata for listing, deleting and quota accounting.
type Registry interface {
	// ListArtifacts lists every tag under a repository.
	ListArtifacts(ctx context.Context, repository string) ([]Artifact, error)

	// DeleteArtifact removes one tag from a repository.
	DeleteArtifact(ctx context.Context, repository, tag string) error

	// SumSizeBytes sums SizeBytes across every artifact under
	// repository, for the per-user snapshot quota (spec §4.6).
	SumSizeBytes(ctx context.Context, repository string) (int64, error)
}

// HarborRegistry talks to a Harbor v2 API server, the registry the
// pack's original source uses (original_source/.../snapshots/snapshots.py
// via harborapi.HarborAsyncClient). No Go Harbor client appears anywhere
// in the example pack, so this is a minimal REST client over net/http —
// the one place in C6 that falls back to the standard library, since the
// surface needed (list/delete artifacts, read their labels and size) is
// three JSON GET/DELETE calls and pulling in a full SDK for that would
// add a dependency no other package could share.
type HarborRegistry struct {
	baseURL  string
	username string
	secret   string
	client   *http.Client
}

func NewHarborRegistry(baseURL, username, secret string) *HarborRegistry {
	return &HarborRegistry{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		secret:   secret,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type harborArtifact struct {
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
	Size      int64 `json:"size"`
	ExtraAttrs struct {
		Config struct {
			Labels map[string]string `json:"Labels"`
		} `json:"config"`
	} `json:"extra_attrs"`
}

func (h *HarborRegistry) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(h.username, h.secret)
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("registryclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("registryclient: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// projectAndRepo splits PAPI's "user-snapshots/<formatted-owner>"-shaped
// repository string into Harbor's separate project/repository path
// segments.
func projectAndRepo(repository string) (project, repo string) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return repository, ""
}

func (h *HarborRegistry) ListArtifacts(ctx context.Context, repository string) ([]Artifact, error) {
	project, repo := projectAndRepo(repository)
	var raw []harborArtifact
	p := fmt.Sprintf("/api/v2.0/projects/%s/repositories/%s/artifacts",
		url.PathEscape(project), url.PathEscape(repo))
	if err := h.do(ctx, http.MethodGet, p, &raw); err != nil {
		return nil, err
	}

	out := make([]Artifact, 0, len(raw))
	for _, a := range raw {
		tag := ""
		if len(a.Tags) > 0 {
			tag = a.Tags[0].Name
		}
		out = append(out, Artifact{
			Repository: repository,
			Tag:        tag,
			SizeBytes:  a.Size,
			Labels:     a.ExtraAttrs.Config.Labels,
		})
	}
	return out, nil
}

func (h *HarborRegistry) DeleteArtifact(ctx context.Context, repository, tag string) error {
	project, repo := projectAndRepo(repository)
	p := fmt.Sprintf("/api/v2.0/projects/%s/repositories/%s/artifacts/%s",
		url.PathEscape(project), url.PathEscape(repo), url.PathEscape(tag))
	return h.do(ctx, http.MethodDelete, p, nil)
}

func (h *HarborRegistry) SumSizeBytes(ctx context.Context, repository string) (int64, error) {
	artifacts, err := h.ListArtifacts(ctx, repository)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range artifacts {
		total += a.SizeBytes
	}
	return total, nil
}

var _ Registry = (*HarborRegistry)(nil)
